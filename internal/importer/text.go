package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// TextSource reads plain-text statement dumps. Pages are separated by a
// form feed; line numbers run across the whole document.
type TextSource struct{}

// Format returns the file extension handled.
func (s *TextSource) Format() string { return "txt" }

// Read splits r into RawLines.
func (s *TextSource) Read(document string, r io.Reader) ([]model.RawLine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return splitPages(document, strings.Split(text, "\f")), nil
}

// splitPages numbers the lines of each page.
func splitPages(document string, pages []string) []model.RawLine {
	var out []model.RawLine
	n := 0
	for p, page := range pages {
		for _, line := range strings.Split(strings.TrimSuffix(page, "\n"), "\n") {
			n++
			out = append(out, model.RawLine{Document: document, Page: p + 1, Line: n, Text: line})
		}
	}
	return out
}
