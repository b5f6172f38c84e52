// Package ingest turns uploaded documents into knowledge chunks.
//
// PDF files become one chunk per page with text. Plain text and
// markdown files are split at blank lines.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/randalmurphal/flowmind/pkg/flowmind/engine"
)

// Format is a supported document format.
type Format string

// Supported formats.
const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

var (
	// ErrUnsupported indicates a file type ingestion cannot read.
	ErrUnsupported = errors.New("unsupported document type")

	// ErrNoText indicates the document held no extractable text.
	ErrNoText = errors.New("no extractable text")
)

var formats = map[string]Format{
	".pdf":      FormatPDF,
	".txt":      FormatText,
	".md":       FormatText,
	".markdown": FormatText,
}

// Detect returns the format of filename by extension.
func Detect(filename string) (Format, error) {
	f, ok := formats[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", fmt.Errorf("%s: %w", filename, ErrUnsupported)
	}
	return f, nil
}

// Chunks extracts the chunks of a document. The source of every chunk is
// the base name of filename.
func Chunks(filename string, data []byte) ([]engine.Chunk, error) {
	format, err := Detect(filename)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(filename)

	var chunks []engine.Chunk
	switch format {
	case FormatPDF:
		pages, err := PDFPages(data)
		if err != nil {
			return nil, err
		}
		chunks = engine.SplitPages(pages, source)
	case FormatText:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s is not UTF-8: %w", source, ErrNoText)
		}
		chunks = engine.SplitParagraphs(string(data), source)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrNoText)
	}
	return chunks, nil
}

// PDFPages returns the plain text of every page in order. A file the
// parser cannot read is reported as ErrNoText.
func PDFPages(data []byte) (pages []string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v: %w", r, ErrNoText)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %v: %w", err, ErrNoText)
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %v: %w", i, err, ErrNoText)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
