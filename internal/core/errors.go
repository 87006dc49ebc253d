package core

import "errors"

// Error taxonomy for the gateway. Every failure surfaced by the synthesis
// pipeline wraps exactly one of these sentinels so boundaries can classify
// it with errors.Is and produce a structured error body.
var (
	// ErrValidation indicates a malformed batch: the caller's fault and
	// always recoverable by correcting the request.
	ErrValidation = errors.New("validation failed")

	// ErrEngineLoad indicates model or tokenizer initialization failed.
	// The session is left unset so a later call may retry the load.
	ErrEngineLoad = errors.New("engine load failed")

	// ErrEngineGeneration indicates a failure during the combined batch
	// invocation, including demultiplexing invariant violations.
	ErrEngineGeneration = errors.New("engine generation failed")

	// ErrWarmup indicates the one-time warmup pass failed. Never surfaced
	// to callers; logged only.
	ErrWarmup = errors.New("engine warmup failed")
)
