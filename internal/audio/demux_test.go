// Package audio_test tests batch output demultiplexing and buffer encoding.
package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-gateway/internal/audio"
	"github.com/book-expert/tts-gateway/internal/core"
)

func TestDemux_PreservesOrderAndLengths(t *testing.T) {
	t.Parallel()

	// Three rows of stride 4: valid lengths 2, 4, 1. Padding samples are
	// set to a marker value that must never appear in the output.
	result := &core.GenerationResult{
		Samples: []float32{
			0.1, 0.2, -99, -99,
			0.3, 0.4, 0.5, 0.6,
			0.7, -99, -99, -99,
		},
		Stride:       4,
		Lengths:      []int{2, 4, 1},
		SamplingRate: 44100,
	}

	buffers, err := audio.Demux(result, 3)
	require.NoError(t, err)
	require.Len(t, buffers, 3)

	assert.Equal(t, []float32{0.1, 0.2}, buffers[0])
	assert.Equal(t, []float32{0.3, 0.4, 0.5, 0.6}, buffers[1])
	assert.Equal(t, []float32{0.7}, buffers[2])
}

func TestDemux_CopiesOutOfCombinedBlock(t *testing.T) {
	t.Parallel()

	result := &core.GenerationResult{
		Samples: []float32{1, 2, 3, 4},
		Stride:  2,
		Lengths: []int{2, 2},
	}

	buffers, err := audio.Demux(result, 2)
	require.NoError(t, err)

	// Mutating the combined block must not affect the demuxed buffers.
	result.Samples[0] = -1

	assert.Equal(t, []float32{1, 2}, buffers[0])
}

func TestDemux_LengthArrayMismatchFailsFast(t *testing.T) {
	t.Parallel()

	result := &core.GenerationResult{
		Samples: []float32{1, 2, 3, 4},
		Stride:  2,
		Lengths: []int{2},
	}

	buffers, err := audio.Demux(result, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)
	assert.Nil(t, buffers)
}

func TestDemux_RowLengthBeyondStrideFails(t *testing.T) {
	t.Parallel()

	result := &core.GenerationResult{
		Samples: []float32{1, 2, 3, 4},
		Stride:  2,
		Lengths: []int{2, 3},
	}

	_, err := audio.Demux(result, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)
}

func TestDemux_TruncatedCombinedBlockFails(t *testing.T) {
	t.Parallel()

	result := &core.GenerationResult{
		Samples: []float32{1, 2, 3},
		Stride:  2,
		Lengths: []int{2, 2},
	}

	_, err := audio.Demux(result, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)
}

func TestDemux_InvalidStrideFails(t *testing.T) {
	t.Parallel()

	result := &core.GenerationResult{
		Samples: nil,
		Stride:  0,
		Lengths: []int{0},
	}

	_, err := audio.Demux(result, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineGeneration)
}

func TestEncodeDecodeBuffer(t *testing.T) {
	t.Parallel()

	samples := []float32{0.0, 1.0, -1.0, 0.33}

	encoded := audio.EncodeBuffer(samples)
	require.NotEmpty(t, encoded)

	decoded, err := audio.DecodeBuffer(encoded)
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)
}

func TestEncodeBuffer_EmptyIsEmptyString(t *testing.T) {
	t.Parallel()

	assert.Empty(t, audio.EncodeBuffer(nil))
}

func TestDecodeBuffer_RejectsMalformedBase64(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeBuffer("!!! not base64 !!!")
	require.Error(t, err)
}
