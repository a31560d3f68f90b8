package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyExtraction reports that a PDF parsed fine but yielded no text
// (typically a scanned/image-only document). It is a signal to fall back
// to vision analysis, not a user-facing failure.
var ErrEmptyExtraction = errors.New("pdf has no extractable text")

// ExtractPDFText pulls plain text from PDF bytes and normalizes it.
// Returns the page count reported by the document itself.
func ExtractPDFText(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("read pdf: %w", err)
	}

	pageCount := reader.NumPage()

	var sb strings.Builder
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", pageCount, fmt.Errorf("extract pdf text: %w", err)
	}
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", pageCount, fmt.Errorf("extract pdf text: %w", err)
	}

	text, _ := Normalize(sb.String())
	if text == "" {
		return "", pageCount, ErrEmptyExtraction
	}
	return text, pageCount, nil
}
