// Package batch provides admission control and token-budget estimation for
// batched synthesis requests.
package batch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/tts-gateway/internal/core"
)

// ValidateChunks checks a batch of text segments against the admission
// limits. The caller-supplied maxChunks is itself clamped to the hard
// ceiling, so no override can push an oversized batch into the engine.
// On success the batch is returned to the caller unchanged; there are no
// side effects.
func ValidateChunks(chunks []string, maxChunks int) error {
	if maxChunks <= 0 || maxChunks > core.HardMaxChunks {
		maxChunks = core.HardMaxChunks
	}

	if len(chunks) == 0 {
		return fmt.Errorf("%w: text_chunks must be a non-empty list", core.ErrValidation)
	}

	if len(chunks) > maxChunks {
		return fmt.Errorf(
			"%w: batch size %d exceeds limit %d",
			core.ErrValidation,
			len(chunks),
			maxChunks,
		)
	}

	for index, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			return fmt.Errorf(
				"%w: chunk %d must be a non-empty string",
				core.ErrValidation,
				index,
			)
		}

		// Length is measured in characters, not bytes: Devanagari text
		// runs several bytes per character and must not be penalized
		// for its encoding.
		if length := utf8.RuneCountInString(chunk); length > core.MaxChunkLength {
			return fmt.Errorf(
				"%w: chunk %d length %d exceeds %d characters",
				core.ErrValidation,
				index,
				length,
				core.MaxChunkLength,
			)
		}
	}

	return nil
}
