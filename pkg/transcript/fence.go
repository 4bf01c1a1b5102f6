package transcript

import (
	"strings"
)

// Fence delimits embedded code in agent messages
const Fence = "```"

// Part of a message split on fences
type Part struct {
	Text   string
	Fenced bool
}

// SplitFences splits s on ``` fences. Even parts are prose and odd parts
// are fenced bodies. An unterminated fence leaves its body as the last part.
func SplitFences(s string) []Part {
	raw := strings.Split(s, Fence)
	parts := make([]Part, len(raw))
	for i, text := range raw {
		parts[i] = Part{Text: text, Fenced: i%2 == 1}
	}
	return parts
}

// Unterminated reports whether s opens a fence it never closes
func Unterminated(s string) bool {
	return strings.Count(s, Fence)%2 == 1
}
