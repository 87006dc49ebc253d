// Package audio provides demultiplexing of combined batch output into
// per-segment sample buffers, and the wire encoding of those buffers.
package audio

import (
	"fmt"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Demux slices the combined sample block into one buffer per batch member,
// preserving input order. Row i occupies result.Samples[i*Stride:(i+1)*Stride]
// and only its first Lengths[i] samples are valid.
//
// The length-array invariant is checked explicitly before any slicing: a
// mismatch silently corrupts audio-to-request correspondence, so it must
// fail fast instead.
func Demux(result *core.GenerationResult, batchSize int) ([][]float32, error) {
	if len(result.Lengths) != batchSize {
		return nil, fmt.Errorf(
			"%w: length array size %d does not match batch size %d",
			core.ErrEngineGeneration,
			len(result.Lengths),
			batchSize,
		)
	}

	if result.Stride <= 0 {
		return nil, fmt.Errorf(
			"%w: invalid row stride %d",
			core.ErrEngineGeneration,
			result.Stride,
		)
	}

	if len(result.Samples) < batchSize*result.Stride {
		return nil, fmt.Errorf(
			"%w: combined output holds %d samples, need %d for %d rows of stride %d",
			core.ErrEngineGeneration,
			len(result.Samples),
			batchSize*result.Stride,
			batchSize,
			result.Stride,
		)
	}

	buffers := make([][]float32, batchSize)

	for index := range batchSize {
		length := result.Lengths[index]
		if length < 0 || length > result.Stride {
			return nil, fmt.Errorf(
				"%w: row %d valid length %d outside stride %d",
				core.ErrEngineGeneration,
				index,
				length,
				result.Stride,
			)
		}

		rowStart := index * result.Stride
		row := result.Samples[rowStart : rowStart+length]

		// Copy out of the combined block so no reference to the
		// engine's buffer survives past demultiplexing.
		buffer := make([]float32, length)
		copy(buffer, row)

		buffers[index] = buffer
	}

	return buffers, nil
}
