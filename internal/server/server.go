// Package server provides the HTTP boundary of the gateway: wire JSON in,
// synthesis handler in the middle, wire JSON out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/synthesis"
)

// Serving constants.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second

	serviceName      = "tts"
	generateEndpoint = "/generate"
	healthEndpoint   = "/health"
)

// generateRequest is the wire shape of POST /generate. Optional fields use
// pointers so "absent" and "explicit zero value" stay distinguishable when
// defaults are applied. Unknown fields are ignored, never trusted.
type generateRequest struct {
	TextChunks    []string `json:"text_chunks"`
	Voice         string   `json:"voice"`
	ModelName     string   `json:"model_name"`
	TokensPerWord int      `json:"tokens_per_word"`
	DoSample      *bool    `json:"do_sample"`
	Temperature   *float64 `json:"temperature"`
	MaxChunks     int      `json:"max_chunks"`
}

// healthResponse is the liveness probe body.
type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Endpoint string `json:"endpoint"`
}

// Server is the HTTP front door for batch synthesis.
type Server struct {
	handler *synthesis.Handler
	log     *logger.Logger
}

// New creates an HTTP server over the given synthesis handler.
func New(handler *synthesis.Handler, log *logger.Logger) *Server {
	return &Server{
		handler: handler,
		log:     log,
	}
}

// Router builds the chi router with CORS middleware and both endpoints.
func (s *Server) Router() chi.Router {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	router.Post(generateEndpoint, s.handleGenerate)
	router.Get(healthEndpoint, s.handleHealth)

	return router
}

// ListenAndServe serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	s.log.System("HTTP server listening on port %d", port)

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var wireReq generateRequest

	err := json.NewDecoder(r.Body).Decode(&wireReq)
	if err != nil {
		decodeErr := fmt.Errorf("%w: malformed request body: %w", core.ErrValidation, err)
		s.writeError(w, decodeErr)

		return
	}

	resp, err := s.handler.HandleBatch(r.Context(), wireReq.toSynthesisRequest())
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "healthy",
		Service:  serviceName,
		Version:  synthesis.HandlerVersion,
		Endpoint: generateEndpoint,
	})
}

// toSynthesisRequest normalizes the wire record into the handler's request,
// applying the documented defaults for absent optional fields.
func (g generateRequest) toSynthesisRequest() core.SynthesisRequest {
	doSample := true
	if g.DoSample != nil {
		doSample = *g.DoSample
	}

	temperature := core.DefaultTemperature
	if g.Temperature != nil {
		temperature = *g.Temperature
	}

	return core.SynthesisRequest{
		Chunks:        g.TextChunks,
		Voice:         g.Voice,
		ModelName:     g.ModelName,
		TokensPerWord: g.TokensPerWord,
		DoSample:      doSample,
		Temperature:   temperature,
		MaxChunks:     g.MaxChunks,
	}
}

// writeError converts a taxonomy error into the structured error body with
// the appropriate status code. Raw internal failures never reach the wire.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error("Request failed: %v", err)

	s.writeJSON(w, statusFor(err), synthesis.NewErrorResponse(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	err := encoder.Encode(v)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}

// statusFor maps the error taxonomy to HTTP status codes: caller faults are
// 400, a failed load means the backend is unavailable, everything else is a
// generation failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrEngineLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
