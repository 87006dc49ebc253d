// Package core defines the shared types, interfaces, and error taxonomy for
// the batched TTS gateway.
package core

import (
	"context"
	"time"
)

// Request defaults. Every recognized field of an incoming request is
// enumerated here and applied explicitly; unknown fields are ignored.
const (
	DefaultVoice         = "aryan_default"
	DefaultModelName     = "ai4bharat/indic-parler-tts"
	DefaultTokensPerWord = 70
	DefaultTemperature   = 1.0
	DefaultMaxChunks     = 20

	// HardMaxChunks bounds the batch size regardless of any caller-supplied
	// override, protecting the engine from unbounded batch growth.
	HardMaxChunks = 50

	// MaxChunkLength is the per-segment character ceiling (~10 words at
	// 20 chars average).
	MaxChunkLength = 200
)

// Token budget bounds for a single generation call.
const (
	MinTokenBudget = 50
	MaxTokenBudget = 2000
)

// SynthesisRequest is the validated, fully-defaulted record for one batch
// synthesis call. Boundaries (HTTP, NATS) normalize their wire formats into
// this before handing it to the handler.
type SynthesisRequest struct {
	// Chunks is the ordered, non-empty sequence of text segments to
	// synthesize together in one engine invocation.
	Chunks []string

	// Voice selects a profile from the voice registry. Unknown keys fall
	// back to the default profile rather than failing.
	Voice string

	// ModelName optionally overrides the configured engine model.
	ModelName string

	// TokensPerWord is the per-word output-length multiplier used by the
	// token budget estimator.
	TokensPerWord int

	// DoSample enables sampling during generation.
	DoSample bool

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxChunks is the caller-supplied batch cap, itself clamped to
	// HardMaxChunks during admission.
	MaxChunks int
}

// ApplyDefaults fills zero-valued optional fields. Chunks is deliberately
// left alone: an empty batch must fail admission, not be papered over.
func (r *SynthesisRequest) ApplyDefaults() {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}

	if r.ModelName == "" {
		r.ModelName = DefaultModelName
	}

	if r.TokensPerWord <= 0 {
		r.TokensPerWord = DefaultTokensPerWord
	}

	if r.MaxChunks <= 0 {
		r.MaxChunks = DefaultMaxChunks
	}
}

// GenerationResult is the engine's combined output for a whole batch: one
// padded sample block plus the per-item valid lengths needed to demultiplex
// it. Lengths are in samples and follow input order.
type GenerationResult struct {
	// Samples holds the batch rows back to back: row i occupies
	// Samples[i*Stride : (i+1)*Stride], padded to Stride.
	Samples []float32

	// Stride is the padded row length shared by every batch member.
	Stride int

	// Lengths records the valid sample count of each row, input order.
	Lengths []int

	// SamplingRate is the engine's configured output rate in Hz.
	SamplingRate int

	// Duration is the wall-clock time of the combined generation call.
	Duration time.Duration
}

// SynthesisResponse is the assembled per-call result. The handler guarantees
// BufferCount == ChunksProcessed == len(request chunks) and that buffer
// order matches input order.
type SynthesisResponse struct {
	AudioBuffers    []string `json:"audio_buffers"`
	SamplingRate    int      `json:"sampling_rate"`
	BufferCount     int      `json:"buffer_count"`
	ProcessingTime  float64  `json:"processing_time_seconds"`
	ChunksProcessed int      `json:"chunks_processed"`
	HandlerVersion  string   `json:"handler_version"`
}

// GenerateParams carries the per-invocation settings for one combined engine
// call. The style description is repeated for every batch member by the
// engine, and TokenBudget bounds the shared maximum output length.
type GenerateParams struct {
	StyleDescription string
	TokenBudget      int
	DoSample         bool
	Temperature      float64
}

// Engine is the synthesis engine adapter as seen by the handler: a lazily
// initialized, process-lifetime session with exactly one generation
// capability. Implementations must serialize all three operations; the
// underlying engine is not reentrant.
type Engine interface {
	// EnsureLoaded loads the model and tokenizers on first call and is a
	// no-op afterwards. A failed load leaves no session behind so a later
	// call can retry.
	EnsureLoaded(ctx context.Context, modelName string) error

	// EnsureWarmed runs the one-time warmup pass. It succeeds at most once
	// per process; failures are non-fatal and may be retried.
	EnsureWarmed(ctx context.Context) error

	// Generate issues exactly one combined generation call for the batch
	// and returns the padded sample block with per-item valid lengths.
	Generate(ctx context.Context, texts []string, params GenerateParams) (*GenerationResult, error)
}
