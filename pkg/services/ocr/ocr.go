package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/disintegration/imaging"
)

// maxSide is the largest edge the printed-text OCR endpoint accepts.
const maxSide = 4200

// TextLine is one recognised line with its bounding box in pixels.
type TextLine struct {
	Text   string
	X      int
	Y      int
	Width  int
	Height int
}

type recognizer interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, image io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// Service handles OCR operations
type Service struct {
	client   recognizer
	language computervision.OcrLanguages
	logger   *slog.Logger
}

// NewService creates an OCR service against an Azure Computer Vision
// endpoint. language is an OCR language code such as "es", or "unk" to let
// the service detect it.
func NewService(endpoint, apiKey, language string, logger *slog.Logger) *Service {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return newService(client, language, logger)
}

func newService(client recognizer, language string, logger *slog.Logger) *Service {
	if language == "" {
		language = string(computervision.Es)
	}
	return &Service{client: client, language: computervision.OcrLanguages(language), logger: logger}
}

// EnhanceImageForOCR writes a grayscale, sharpened copy of the image into
// dir and returns its path.
func (s *Service) EnhanceImageForOCR(imagePath, dir string) (string, error) {
	src, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustBrightness(img, 10)
	img = imaging.AdjustGamma(img, 1.2)

	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	processedPath := filepath.Join(dir, "enhanced.jpg")
	if err := imaging.Save(img, processedPath, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to save processed image: %w", err)
	}
	return processedPath, nil
}

// ExtractText performs OCR on an image and returns the extracted text lines
func (s *Service) ExtractText(ctx context.Context, imagePath string) ([]TextLine, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	result, err := s.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(bytes.NewReader(imageData)), s.language)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	return textLines(result), nil
}

// ExtractDocumentText enhances the image, runs OCR and returns the text in
// reading order, one line per row.
func (s *Service) ExtractDocumentText(ctx context.Context, imagePath string) (string, error) {
	dir, err := os.MkdirTemp("", "invoice-ocr-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	processed, err := s.EnhanceImageForOCR(imagePath, dir)
	if err != nil {
		return "", err
	}
	lines, err := s.ExtractText(ctx, processed)
	if err != nil {
		return "", err
	}
	s.logger.DebugContext(ctx, "ocr finished", "path", imagePath, "lines", len(lines))
	return JoinLines(lines), nil
}

// JoinLines orders lines top to bottom, left to right, and joins them.
func JoinLines(lines []TextLine) string {
	sorted := make([]TextLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var b strings.Builder
	for _, l := range sorted {
		if l.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

func textLines(result computervision.OcrResult) []TextLine {
	if result.Regions == nil {
		return nil
	}
	var out []TextLine
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			box := parseBox(line.BoundingBox)
			if len(box) < 4 || line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, w := range *line.Words {
				if w.Text != nil {
					words = append(words, *w.Text)
				}
			}
			out = append(out, TextLine{
				Text:   strings.Join(words, " "),
				X:      box[0],
				Y:      box[1],
				Width:  box[2],
				Height: box[3],
			})
		}
	}
	return out
}

// parseBox reads the "x,y,width,height" bounding box format.
func parseBox(s *string) []int {
	if s == nil {
		return nil
	}
	var box []int
	for _, part := range strings.Split(*s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		box = append(box, v)
	}
	return box
}
