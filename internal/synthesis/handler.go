// Package synthesis provides the batch synthesis handler: admission,
// budgeting, the single combined engine invocation, demultiplexing, and
// response assembly for one request at a time.
package synthesis

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-gateway/internal/audio"
	"github.com/book-expert/tts-gateway/internal/batch"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/voice"
)

// HandlerVersion tags every response for deployment tracking.
const HandlerVersion = "v1.0-TTS-SANSKRIT-BATCH"

// ErrorResponse is the structured error body returned to callers in place
// of a response. No raw internal failure ever reaches a transport boundary.
type ErrorResponse struct {
	Error          string `json:"error"`
	HandlerVersion string `json:"handler_version"`
}

// NewErrorResponse wraps an error into the wire error shape.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Error:          err.Error(),
		HandlerVersion: HandlerVersion,
	}
}

// Handler orchestrates one batch synthesis call end to end. It owns the
// request and response records for the duration of the call and translates
// every failure into the error taxonomy.
type Handler struct {
	engine    core.Engine
	modelName string
	log       *logger.Logger
}

// NewHandler creates a batch synthesis handler over the given engine.
// modelName is the serving default applied when a request names no model;
// empty falls back to the built-in default.
func NewHandler(eng core.Engine, modelName string, log *logger.Logger) *Handler {
	return &Handler{
		engine:    eng,
		modelName: modelName,
		log:       log,
	}
}

// HandleBatch runs admission, voice resolution, budget estimation, the
// combined generation call, demultiplexing, and response assembly. Every
// returned error wraps one of the core taxonomy sentinels.
func (h *Handler) HandleBatch(
	ctx context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResponse, error) {
	if req.ModelName == "" {
		req.ModelName = h.modelName
	}

	req.ApplyDefaults()

	err := batch.ValidateChunks(req.Chunks, req.MaxChunks)
	if err != nil {
		return nil, err
	}

	if !voice.Known(req.Voice) {
		h.log.Warn("Unknown voice '%s', falling back to default profile", req.Voice)
	}

	description := voice.Resolve(req.Voice)
	budget := batch.SharedBudget(req.Chunks, req.TokensPerWord)

	h.log.Info(
		"Processing %d chunks with voice '%s' and shared budget %d",
		len(req.Chunks),
		req.Voice,
		budget,
	)

	err = h.engine.EnsureLoaded(ctx, req.ModelName)
	if err != nil {
		return nil, err
	}

	// Warmup failures are logged but never block serving; the adapter
	// retries on a later request.
	warmErr := h.engine.EnsureWarmed(ctx)
	if warmErr != nil {
		h.log.Warn("Warmup failed: %v", warmErr)
	}

	result, err := h.engine.Generate(ctx, req.Chunks, core.GenerateParams{
		StyleDescription: description,
		TokenBudget:      budget,
		DoSample:         req.DoSample,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	buffers, err := audio.Demux(result, len(req.Chunks))
	if err != nil {
		return nil, err
	}

	return h.assembleResponse(req.Chunks, buffers, result)
}

// assembleResponse encodes the demuxed buffers and checks the response
// postcondition: buffer count and chunks processed must equal the input
// segment count.
func (h *Handler) assembleResponse(
	chunks []string,
	buffers [][]float32,
	result *core.GenerationResult,
) (*core.SynthesisResponse, error) {
	encoded := make([]string, len(buffers))
	for index, buffer := range buffers {
		encoded[index] = audio.EncodeBuffer(buffer)
	}

	if len(encoded) != len(chunks) {
		return nil, fmt.Errorf(
			"%w: assembled %d buffers for %d chunks",
			core.ErrEngineGeneration,
			len(encoded),
			len(chunks),
		)
	}

	h.log.Info(
		"Generated %d audio buffers in %.2fs",
		len(encoded),
		result.Duration.Seconds(),
	)

	return &core.SynthesisResponse{
		AudioBuffers:    encoded,
		SamplingRate:    result.SamplingRate,
		BufferCount:     len(encoded),
		ProcessingTime:  result.Duration.Seconds(),
		ChunksProcessed: len(chunks),
		HandlerVersion:  HandlerVersion,
	}, nil
}
