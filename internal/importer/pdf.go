package importer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// PDFSource extracts text rows from a PDF with an embedded text layer.
// Scanned images are not supported.
type PDFSource struct{}

// Format returns the file extension handled.
func (s *PDFSource) Format() string { return "pdf" }

// Read extracts one RawLine per text row, page by page.
func (s *PDFSource) Read(document string, r io.Reader) (lines []model.RawLine, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader crashed: %v", rec)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}

	pr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	numPages := pr.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := pr.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		var sb strings.Builder
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			sb.WriteString(strings.Join(parts, " "))
			sb.WriteByte('\n')
		}
		pages = append(pages, sb.String())
	}
	return splitPages(document, pages), nil
}
