// Package markdown converts fetched HTML into markdown suitable for LLM
// prompts.
package markdown

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Converter turns raw HTML into normalized markdown.
type Converter struct{}

// New creates a Converter.
func New() *Converter {
	return &Converter{}
}

// Convert converts HTML to markdown and collapses runs of blank lines. The
// result keeps headers, lists and tables; scripts and styles are dropped by
// the conversion.
func (c *Converter) Convert(html string) (string, error) {
	out, err := md.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return collapseBlankLines(out), nil
}

// collapseBlankLines keeps at most one blank line between content lines and
// trims surrounding whitespace.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	result := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank <= 1 {
				result = append(result, "")
			}
			continue
		}
		blank = 0
		result = append(result, line)
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
