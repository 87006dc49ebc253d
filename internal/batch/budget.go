package batch

import (
	"strings"

	"github.com/book-expert/tts-gateway/internal/core"
)

// EstimateTokens estimates the output-length budget for one segment from its
// word count, clamped to [MinTokenBudget, MaxTokenBudget].
func EstimateTokens(text string, tokensPerWord int) int {
	words := len(strings.Fields(text))

	estimated := words * tokensPerWord
	if estimated < core.MinTokenBudget {
		return core.MinTokenBudget
	}

	if estimated > core.MaxTokenBudget {
		return core.MaxTokenBudget
	}

	return estimated
}

// SharedBudget reduces the per-item estimates to the single maximum output
// length the whole batch shares. The engine allocates one padded tensor per
// batch, so using the maximum guarantees no segment is truncated at the cost
// of over-allocating compute for shorter segments.
func SharedBudget(chunks []string, tokensPerWord int) int {
	budget := core.MinTokenBudget

	for _, chunk := range chunks {
		estimate := EstimateTokens(chunk, tokensPerWord)
		if estimate > budget {
			budget = estimate
		}
	}

	return budget
}
