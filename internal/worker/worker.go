// Package worker provides a NATS worker that serves batch synthesis jobs
// over request/reply, as an alternative transport to the HTTP boundary.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/synthesis"
)

// handleMessageTimeout bounds one job end to end, generation included.
const handleMessageTimeout = 5 * time.Minute

// SynthesisJobEvent is a batch synthesis job received over NATS. The fields
// mirror the HTTP wire contract; optional fields use pointers so absent and
// explicit zero values stay distinguishable.
type SynthesisJobEvent struct {
	Header        events.EventHeader `json:"header"`
	TextChunks    []string           `json:"text_chunks"`
	Voice         string             `json:"voice,omitempty"`
	ModelName     string             `json:"model_name,omitempty"`
	TokensPerWord int                `json:"tokens_per_word,omitempty"`
	DoSample      *bool              `json:"do_sample,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	MaxChunks     int                `json:"max_chunks,omitempty"`
}

// SynthesisResultEvent is the reply for one job: either the assembled
// response or the structured error body, never both.
type SynthesisResultEvent struct {
	Header   events.EventHeader       `json:"header"`
	Response *core.SynthesisResponse  `json:"response,omitempty"`
	Error    *synthesis.ErrorResponse `json:"error,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and replies with
// the synthesis result.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	handler        *synthesis.Handler
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	handler *synthesis.Handler,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		handler:        handler,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for jobs until the context is
// cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var job SynthesisJobEvent

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to unmarshal synthesis job: %v", err)

		return
	}

	result := w.processJob(ctx, &job)

	err = w.publishResult(msg, result)
	if err != nil {
		w.log.Error(
			"Failed to publish result for workflow %s: %v",
			job.Header.WorkflowID,
			err,
		)
	}
}

// processJob runs one job through the synthesis handler and wraps the
// outcome into a result event. Failures become structured error bodies, the
// same shape the HTTP boundary returns.
func (w *NatsWorker) processJob(ctx context.Context, job *SynthesisJobEvent) *SynthesisResultEvent {
	result := &SynthesisResultEvent{
		Header: replyHeader(job.Header),
	}

	resp, err := w.handler.HandleBatch(ctx, job.toSynthesisRequest())
	if err != nil {
		w.log.Error(
			"Synthesis job failed for workflow %s: %v",
			job.Header.WorkflowID,
			err,
		)

		errorBody := synthesis.NewErrorResponse(err)
		result.Error = &errorBody

		return result
	}

	result.Response = resp

	return result
}

// publishResult marshals and responds with the result event.
func (w *NatsWorker) publishResult(msg *nats.Msg, result *SynthesisResultEvent) error {
	replyData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to respond with result event: %w", err)
	}

	return nil
}

// replyHeader carries the workflow identity forward under a fresh event ID.
func replyHeader(header events.EventHeader) events.EventHeader {
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}

func (j *SynthesisJobEvent) toSynthesisRequest() core.SynthesisRequest {
	doSample := true
	if j.DoSample != nil {
		doSample = *j.DoSample
	}

	temperature := core.DefaultTemperature
	if j.Temperature != nil {
		temperature = *j.Temperature
	}

	return core.SynthesisRequest{
		Chunks:        j.TextChunks,
		Voice:         j.Voice,
		ModelName:     j.ModelName,
		TokensPerWord: j.TokensPerWord,
		DoSample:      doSample,
		Temperature:   temperature,
		MaxChunks:     j.MaxChunks,
	}
}
