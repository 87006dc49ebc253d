package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-gateway/internal/audio"
	"github.com/book-expert/tts-gateway/internal/core"
)

// Padding and warmup constants.
const (
	// paddingSideLeft keeps batch members right-aligned so a single
	// shared generation call starts from the same position for every row.
	paddingSideLeft = "left"

	deviceCUDA = "cuda"

	// Minimum new output units per generation call. The accelerator path
	// tolerates a slightly smaller floor.
	minNewTokensCUDA = 20
	minNewTokensCPU  = 30

	warmupDescription = "Test description"

	// releaseTimeout bounds the detached memory-release call.
	releaseTimeout = 30 * time.Second
)

// Session is the process-lifetime engine state: created on first load,
// mutated only by load and warmup, never explicitly destroyed.
type Session struct {
	ModelName    string
	Device       string
	Precision    string
	SamplingRate int
	LoadedAt     time.Time
}

// Adapter owns the engine session and funnels every call into the inference
// runtime through a single mutex: the runtime shares device memory and its
// generation state is not reentrant, so at most one call may be in flight.
// Concurrent callers queue and are served in arrival order.
type Adapter struct {
	client     *Client
	log        *logger.Logger
	warmupText string

	mu      sync.Mutex
	session *Session
	warmed  bool
}

// NewAdapter creates an engine adapter over the given runtime client. The
// warmupText is the body text for the one-time warmup tokenization pass.
func NewAdapter(client *Client, warmupText string, log *logger.Logger) *Adapter {
	return &Adapter{
		client:     client,
		log:        log,
		warmupText: warmupText,
	}
}

// EnsureLoaded loads the model and both tokenizers on first call, with
// left-side padding selected for consistent batch alignment. Subsequent
// calls are no-ops. A failed load leaves the session unset so a later call
// can retry.
func (a *Adapter) EnsureLoaded(ctx context.Context, modelName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return nil
	}

	a.log.Info("Loading TTS model '%s'", modelName)

	start := time.Now()

	loaded, err := a.client.LoadModel(ctx, LoadRequest{
		ModelName:   modelName,
		PaddingSide: paddingSideLeft,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrEngineLoad, err)
	}

	a.session = &Session{
		ModelName:    modelName,
		Device:       loaded.Device,
		Precision:    loaded.Precision,
		SamplingRate: loaded.SamplingRate,
		LoadedAt:     time.Now(),
	}

	a.log.Info(
		"Model loaded in %.2fs on %s (%s, %d Hz)",
		time.Since(start).Seconds(),
		loaded.Device,
		loaded.Precision,
		loaded.SamplingRate,
	)

	return nil
}

// EnsureWarmed performs a trivial tokenization pass to pre-trigger the
// runtime's lazy initialization paths, then releases transient accelerator
// memory. It runs successfully at most once per process; the flag is only
// set on success so a later request may retry a failed warmup.
func (a *Adapter) EnsureWarmed(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.warmed {
		return nil
	}

	if a.session == nil {
		return fmt.Errorf("%w: no session loaded", core.ErrWarmup)
	}

	a.log.Info("Warming up model")

	err := a.client.Warmup(ctx, WarmupRequest{
		Description: warmupDescription,
		Text:        a.warmupText,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrWarmup, err)
	}

	a.releaseMemory()

	a.warmed = true

	a.log.Info("Warmup completed")

	return nil
}

// Generate issues exactly one combined generation call for the batch,
// bounded by the shared token budget and a small device-dependent minimum.
// Transient accelerator memory is released whether the call succeeded or
// failed, so no partially-consumed device state can corrupt later calls.
func (a *Adapter) Generate(
	ctx context.Context,
	texts []string,
	params core.GenerateParams,
) (*core.GenerationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil, fmt.Errorf("%w: no session loaded", core.ErrEngineLoad)
	}

	defer a.releaseMemory()

	minNewTokens := minNewTokensCPU
	if a.session.Device == deviceCUDA {
		minNewTokens = minNewTokensCUDA
	}

	start := time.Now()

	generated, err := a.client.GenerateBatch(ctx, GenerateRequest{
		Texts:            texts,
		StyleDescription: params.StyleDescription,
		MaxNewTokens:     params.TokenBudget,
		MinNewTokens:     minNewTokens,
		DoSample:         params.DoSample,
		Temperature:      params.Temperature,
	})

	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEngineGeneration, err)
	}

	samples, err := audio.DecodeBuffer(generated.Audio)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: malformed combined audio payload: %w",
			core.ErrEngineGeneration,
			err,
		)
	}

	samplingRate := generated.SamplingRate
	if samplingRate == 0 {
		samplingRate = a.session.SamplingRate
	}

	return &core.GenerationResult{
		Samples:      samples,
		Stride:       generated.Stride,
		Lengths:      generated.Lengths,
		SamplingRate: samplingRate,
		Duration:     duration,
	}, nil
}

// Session returns a copy of the current session, or nil before the first
// successful load. Intended for diagnostics.
func (a *Adapter) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil
	}

	copied := *a.session

	return &copied
}

// releaseMemory drops transient accelerator allocations. Failures are logged
// and swallowed: the release is best effort and must not mask the outcome
// of the call that triggered it. It runs under its own context so the
// release still happens when the triggering call died of cancellation.
func (a *Adapter) releaseMemory() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	err := a.client.ReleaseMemory(ctx)
	if err != nil {
		a.log.Warn("Failed to release accelerator memory: %v", err)
	}
}
