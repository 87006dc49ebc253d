package synthesis

import (
	"context"
	"fmt"

	"github.com/book-expert/tts-gateway/internal/core"
)

// selfTestChunks is the Sanskrit smoke batch used to exercise the whole
// pipeline before serving.
var selfTestChunks = []string{
	"ॐ गं गणपतये नमः",
	"आपूर्यमाणमचलप्रतिष्ठं समुद्रम्",
	"या निशा सर्वभूतानां तस्यां जागर्ति संयमी",
}

// SelfTest runs the Sanskrit smoke batch through the handler with default
// request settings and verifies the response postconditions. Used by the
// one-shot local mode at startup.
func (h *Handler) SelfTest(ctx context.Context) (*core.SynthesisResponse, error) {
	h.log.Info("Running self test with %d Sanskrit chunks", len(selfTestChunks))

	req := core.SynthesisRequest{
		Chunks:      selfTestChunks,
		Voice:       core.DefaultVoice,
		DoSample:    true,
		Temperature: core.DefaultTemperature,
	}

	resp, err := h.HandleBatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("self test failed: %w", err)
	}

	if resp.BufferCount != len(selfTestChunks) {
		return nil, fmt.Errorf(
			"%w: self test produced %d buffers for %d chunks",
			core.ErrEngineGeneration,
			resp.BufferCount,
			len(selfTestChunks),
		)
	}

	h.log.Info(
		"Self test passed: %d buffers at %d Hz in %.2fs",
		resp.BufferCount,
		resp.SamplingRate,
		resp.ProcessingTime,
	)

	return resp, nil
}
