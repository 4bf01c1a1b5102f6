package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

// NormalizeJSON pretty prints text that should be JSON. Agents produce
// results in many shapes, so every step is best effort and the text comes
// back as is when nothing parses.
func NormalizeJSON(text string) string {
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.ReplaceAll(text[1:len(text)-1], `\n`, "\n")
	}
	text = strings.TrimPrefix(text, "json")

	if out, ok := indentJSON(text); ok {
		return out
	}
	if out, ok := indentJSON(strings.ReplaceAll(text, "'", `"`)); ok {
		return out
	}
	return text
}

func indentJSON(s string) (string, bool) {
	src := bytes.TrimSpace([]byte(s))
	if !json.Valid(src) {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, src, "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}
