// Package engine_test tests the session adapter against a fake inference
// runtime.
package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-gateway/internal/audio"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/engine"
)

const testModelName = "ai4bharat/indic-parler-tts"

// fakeRuntime is a scriptable inference runtime. Counters are atomic so
// tests can assert call counts after concurrent use.
type fakeRuntime struct {
	server *httptest.Server

	loadCalls     atomic.Int64
	warmupCalls   atomic.Int64
	generateCalls atomic.Int64
	releaseCalls  atomic.Int64

	inFlightGenerates    atomic.Int64
	maxInFlightGenerates atomic.Int64

	failLoad     atomic.Bool
	failWarmup   atomic.Bool
	failGenerate atomic.Bool
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()

	runtime := &fakeRuntime{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/model/load", runtime.handleLoad)
	mux.HandleFunc("POST /v1/warmup", runtime.handleWarmup)
	mux.HandleFunc("POST /v1/generate/batch", runtime.handleGenerate)
	mux.HandleFunc("POST /v1/memory/release", runtime.handleRelease)

	runtime.server = httptest.NewServer(mux)
	t.Cleanup(runtime.server.Close)

	return runtime
}

func (f *fakeRuntime) handleLoad(w http.ResponseWriter, r *http.Request) {
	f.loadCalls.Add(1)

	var req engine.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	if req.PaddingSide != "left" {
		http.Error(w, "expected left padding", http.StatusBadRequest)

		return
	}

	if f.failLoad.Load() {
		writeRuntimeError(w, "model weights unavailable")

		return
	}

	writeJSON(w, engine.LoadResponse{
		Device:       "cuda",
		Precision:    "float16",
		SamplingRate: 44100,
	})
}

func (f *fakeRuntime) handleWarmup(w http.ResponseWriter, _ *http.Request) {
	f.warmupCalls.Add(1)

	if f.failWarmup.Load() {
		writeRuntimeError(w, "tokenizer initialization failed")

		return
	}

	writeJSON(w, struct{}{})
}

func (f *fakeRuntime) handleGenerate(w http.ResponseWriter, r *http.Request) {
	f.generateCalls.Add(1)

	// Record the peak overlap so tests can assert that generation calls
	// never run concurrently. The sleep widens the window in which an
	// unserialized second call would be observed.
	current := f.inFlightGenerates.Add(1)
	defer f.inFlightGenerates.Add(-1)

	for {
		observed := f.maxInFlightGenerates.Load()
		if current <= observed || f.maxInFlightGenerates.CompareAndSwap(observed, current) {
			break
		}
	}

	time.Sleep(10 * time.Millisecond)

	var req engine.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	if f.failGenerate.Load() {
		writeRuntimeError(w, "generation aborted")

		return
	}

	// Two samples of valid audio per item, padded to a stride of three.
	stride := 3
	samples := make([]float32, 0, len(req.Texts)*stride)
	lengths := make([]int, len(req.Texts))

	for index := range req.Texts {
		samples = append(samples, float32(index), float32(index)+0.5, 0)
		lengths[index] = 2
	}

	writeJSON(w, engine.GenerateResponse{
		Audio:        audio.EncodeBuffer(samples),
		Stride:       stride,
		Lengths:      lengths,
		SamplingRate: 44100,
	})
}

func (f *fakeRuntime) handleRelease(w http.ResponseWriter, _ *http.Request) {
	f.releaseCalls.Add(1)
	writeJSON(w, struct{}{})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRuntimeError(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func newTestAdapter(t *testing.T, runtime *fakeRuntime) *engine.Adapter {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	client := engine.NewClient(runtime.server.URL, 5*time.Second)

	return engine.NewAdapter(client, "हैलो", testLogger)
}

func TestEnsureLoaded_Idempotent(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))
	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))
	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	assert.Equal(t, int64(1), runtime.loadCalls.Load(), "model must load exactly once")

	session := adapter.Session()
	require.NotNil(t, session)
	assert.Equal(t, testModelName, session.ModelName)
	assert.Equal(t, "cuda", session.Device)
	assert.Equal(t, "float16", session.Precision)
	assert.Equal(t, 44100, session.SamplingRate)
}

func TestEnsureLoaded_FailureLeavesNoSessionAndRetries(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	runtime.failLoad.Store(true)

	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	err := adapter.EnsureLoaded(ctx, testModelName)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineLoad)
	assert.Nil(t, adapter.Session(), "failed load must leave the session unset")

	// A later call retries the load once the runtime recovers.
	runtime.failLoad.Store(false)
	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))
	require.NotNil(t, adapter.Session())
	assert.Equal(t, int64(2), runtime.loadCalls.Load())
}

func TestEnsureWarmed_RunsAtMostOnce(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	require.NoError(t, adapter.EnsureWarmed(ctx))
	require.NoError(t, adapter.EnsureWarmed(ctx))
	require.NoError(t, adapter.EnsureWarmed(ctx))

	assert.Equal(t, int64(1), runtime.warmupCalls.Load(), "warmup must run exactly once")
	assert.Equal(t, int64(1), runtime.releaseCalls.Load(), "warmup must release transient memory")
}

func TestEnsureWarmed_FailureIsRetriable(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	runtime.failWarmup.Store(true)

	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	err := adapter.EnsureWarmed(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrWarmup)

	// The flag is only set on success, so the next call tries again.
	runtime.failWarmup.Store(false)
	require.NoError(t, adapter.EnsureWarmed(ctx))
	assert.Equal(t, int64(2), runtime.warmupCalls.Load())
}

func TestEnsureWarmed_RequiresLoadedSession(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)

	err := adapter.EnsureWarmed(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrWarmup)
	assert.Equal(t, int64(0), runtime.warmupCalls.Load())
}

func TestGenerate_ReturnsCombinedResult(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	texts := []string{"ॐ गं गणपतये नमः", "आपूर्यमाणमचलप्रतिष्ठं समुद्रम्"}

	result, err := adapter.Generate(ctx, texts, core.GenerateParams{
		StyleDescription: "warm, respectful tone",
		TokenBudget:      280,
		DoSample:         true,
		Temperature:      1.0,
	})
	require.NoError(t, err)

	assert.Len(t, result.Lengths, len(texts))
	assert.Equal(t, 3, result.Stride)
	assert.Len(t, result.Samples, len(texts)*result.Stride)
	assert.Equal(t, 44100, result.SamplingRate)
	assert.Positive(t, result.Duration)

	assert.Equal(t, int64(1), runtime.generateCalls.Load(), "one combined call per batch")
	assert.Equal(t, int64(1), runtime.releaseCalls.Load(), "memory released after generation")
}

func TestGenerate_ConcurrentCallersAreSerialized(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	const callers = 8

	var waitGroup sync.WaitGroup

	errs := make([]error, callers)

	for index := range callers {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, errs[index] = adapter.Generate(ctx, []string{"नमस्ते"}, core.GenerateParams{
				StyleDescription: "warm",
				TokenBudget:      70,
				DoSample:         true,
				Temperature:      1.0,
			})
		}()
	}

	waitGroup.Wait()

	for index, err := range errs {
		require.NoError(t, err, "caller %d", index)
	}

	assert.Equal(t, int64(callers), runtime.generateCalls.Load())
	assert.Equal(
		t,
		int64(1),
		runtime.maxInFlightGenerates.Load(),
		"at most one generation call may be in flight",
	)
}

func TestGenerate_ReleasesMemoryWhenCallerContextCancelled(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)

	require.NoError(t, adapter.EnsureLoaded(context.Background(), testModelName))

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Generate(cancelledCtx, []string{"नमस्ते"}, core.GenerateParams{
		StyleDescription: "warm",
		TokenBudget:      70,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)

	assert.Equal(
		t,
		int64(1),
		runtime.releaseCalls.Load(),
		"release must not inherit the dead caller context",
	)
}

func TestGenerate_FailureStillReleasesMemory(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	runtime.failGenerate.Store(true)

	adapter := newTestAdapter(t, runtime)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureLoaded(ctx, testModelName))

	_, err := adapter.Generate(ctx, []string{"नमस्ते"}, core.GenerateParams{
		StyleDescription: "warm",
		TokenBudget:      70,
		DoSample:         true,
		Temperature:      1.0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)
	assert.Equal(t, int64(1), runtime.releaseCalls.Load(), "memory must be released on the failure path")
}

func TestGenerate_WithoutSessionFails(t *testing.T) {
	t.Parallel()

	runtime := newFakeRuntime(t)
	adapter := newTestAdapter(t, runtime)

	_, err := adapter.Generate(context.Background(), []string{"नमस्ते"}, core.GenerateParams{
		StyleDescription: "warm",
		TokenBudget:      70,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineLoad)
	assert.Equal(t, int64(0), runtime.generateCalls.Load())
}
