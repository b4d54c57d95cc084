package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrEmptyDocument is returned when a document yields no text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// ImageReader extracts text from an image file. Implemented by the OCR service.
type ImageReader interface {
	ExtractDocumentText(ctx context.Context, path string) (string, error)
}

// Loader converts supported document formats into plain text.
type Loader struct {
	runner    Runner
	pdftotext string
	images    ImageReader
	logger    *slog.Logger
}

// NewLoader builds a Loader. images may be nil, in which case image
// documents fail to load.
func NewLoader(runner Runner, pdftotext string, images ImageReader, logger *slog.Logger) *Loader {
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	return &Loader{runner: runner, pdftotext: pdftotext, images: images, logger: logger}
}

// Text returns the text content of the document at path.
func (l *Loader) Text(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}

	var (
		text string
		err  error
	)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "pdf":
		text, err = l.pdfText(ctx, path)
	case "docx":
		text, err = docxText(path)
	case "jpg", "jpeg", "png":
		if l.images == nil {
			return "", fmt.Errorf("no OCR service configured for %s documents", ext)
		}
		text, err = l.images.ExtractDocumentText(ctx, path)
	case "txt":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return "", fmt.Errorf("unsupported document type %q", ext)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(strings.ToValidUTF8(text, ""))
	if text == "" {
		return "", ErrEmptyDocument
	}
	l.logger.DebugContext(ctx, "document loaded", "path", path, "type", ext, "chars", utf8.RuneCountInString(text))
	return text, nil
}

func (l *Loader) pdfText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := l.runner.Run(ctx, l.pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", fmt.Errorf("pdftotext: %s: %w", msg, err)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	// pages are separated by form feeds
	return strings.ReplaceAll(string(out), "\f", "\n\n"), nil
}
