package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned for a PDF without pages.
var ErrEmptyDocument = errors.New("pdf has no pages")

// Verify parses PDF bytes with ledongthuc/pdf and returns the page count. It
// guards against a printer that "succeeds" with a truncated or empty file.
func Verify(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyDocument
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	pages := doc.NumPage()
	if pages == 0 {
		return 0, ErrEmptyDocument
	}
	return pages, nil
}

// ExtractText returns the plain text of every page. Used by the CLI to
// preview an artifact and by tests to check rendered content.
func ExtractText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
