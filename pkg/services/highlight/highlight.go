// Package highlight renders code blocks as syntax highlighted HTML.
package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle ...
const DefaultStyle = "github"

// Highlighter ...
type Highlighter struct {
	style     *chroma.Style
	formatter *html.Formatter
}

// New with a chroma style name, unknown names fall back
func New(style string) *Highlighter {
	return &Highlighter{
		style:     styles.Get(style),
		formatter: html.New(html.WithClasses(true), html.PreventSurroundingPre(false)),
	}
}

// HTML highlights code, a language tag on the first line is used and
// dropped. Plain escaped text comes back when highlighting fails.
func (h *Highlighter) HTML(code, language string) string {
	if len(language) > 0 {
		if first, rest, ok := strings.Cut(code, "\n"); ok && strings.EqualFold(strings.TrimSpace(first), language) {
			code = rest
		}
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		logger().Debugw("tokenise fail", "lang", language, "err", err)
		return plain(code)
	}
	var buf strings.Builder
	if err = h.formatter.Format(&buf, h.style, iterator); err != nil {
		logger().Debugw("format fail", "lang", language, "err", err)
		return plain(code)
	}
	return buf.String()
}

// CSS writes the stylesheet for the class names HTML emits
func (h *Highlighter) CSS() string {
	var buf strings.Builder
	if err := h.formatter.WriteCSS(&buf, h.style); err != nil {
		logger().Infow("write css fail", "err", err)
	}
	return buf.String()
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func plain(code string) string {
	return "<pre><code>" + escaper.Replace(code) + "</code></pre>"
}
