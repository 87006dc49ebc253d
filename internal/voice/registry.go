// Package voice provides the static registry mapping voice keys to the
// natural-language style descriptions consumed by the synthesis engine.
package voice

import "github.com/book-expert/tts-gateway/internal/core"

// profiles holds the known voice configurations. The descriptions are the
// engine-facing delivery instructions, tuned for Sanskrit pronunciation.
var profiles = map[string]string{
	"aryan_default":    "Aryan speaks in a warm, respectful tone suitable for Sanskrit conversation while ensuring proper halant pronunciations and clear consonant clusters.",
	"aryan_scholarly":  "Aryan recites Sanskrit with scholarly precision and poetic sensibility while ensuring proper halant pronunciations and clear consonant clusters.",
	"aryan_meditative": "Aryan speaks in a serene, meditative tone with slow, deliberate pacing while ensuring proper halant pronunciations and clear consonant clusters.",
	"priya_default":    "Priya speaks in a warm, respectful tone suitable for Sanskrit conversation while ensuring proper halant pronunciations and clear consonant clusters, with a feminine voice quality.",
}

// Resolve returns the style description for the given voice key. Unknown keys
// fall back to the default profile; every request resolves to a profile.
func Resolve(key string) string {
	if description, ok := profiles[key]; ok {
		return description
	}

	return profiles[core.DefaultVoice]
}

// Known reports whether the key maps to a registered profile.
func Known(key string) bool {
	_, ok := profiles[key]

	return ok
}

// Keys returns the registered voice keys in no particular order.
func Keys() []string {
	keys := make([]string, 0, len(profiles))
	for key := range profiles {
		keys = append(keys, key)
	}

	return keys
}
