// Package pdfprocessor reads document sources for the generation jobs: page
// counts for rasterization and plain text for story prompts.
package pdfprocessor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoPDFContent is returned when a PDF contains no extractable text.
var ErrNoPDFContent = errors.New("pdfprocessor: no text content found in PDF")

// ErrEmptyPath is returned when an empty file path is provided.
var ErrEmptyPath = errors.New("pdfprocessor: empty path provided")

// ErrNoPages is returned when a PDF parses but declares zero pages.
var ErrNoPages = errors.New("pdfprocessor: document has no pages")

// PageSeparator is inserted between the text of consecutive pages.
const PageSeparator = "\n\n"

// PageCount returns the number of pages declared by the PDF at path.
func PageCount(pdfPath string) (int, error) {
	if pdfPath == "" {
		return 0, ErrEmptyPath
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n <= 0 {
		return 0, ErrNoPages
	}
	return n, nil
}

// ExtractText returns the trimmed text of every non-empty page joined by
// PageSeparator. Pages that fail to decode are skipped; ErrNoPDFContent is
// returned when nothing could be extracted.
func ExtractText(pdfPath string) (string, error) {
	if pdfPath == "" {
		return "", ErrEmptyPath
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	var firstErr error
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(PageSeparator)
		}
		b.WriteString(text)
	}

	if b.Len() == 0 {
		if firstErr != nil {
			return "", fmt.Errorf("%w: %v", ErrNoPDFContent, firstErr)
		}
		return "", ErrNoPDFContent
	}
	return b.String(), nil
}

// IsPDF reports whether path names a PDF by extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ReadSource loads the text of a story source. PDFs go through ExtractText;
// anything else is read as UTF-8 with invalid sequences replaced. The result
// is cut to at most maxChars runes when maxChars is positive.
func ReadSource(path string, maxChars int) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	var text string
	if IsPDF(path) {
		t, err := ExtractText(path)
		if err != nil {
			return "", err
		}
		text = t
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read source: %w", err)
		}
		text = strings.ToValidUTF8(string(data), "�")
	}

	if maxChars > 0 {
		text = TruncateRunes(text, maxChars)
	}
	return text, nil
}
