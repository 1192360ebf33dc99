//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/config"
)

// Tesseract runs recognition in-process through libtesseract. Building it
// needs cgo and the tesseract-ocr development headers plus the language data
// for the configured language.
type Tesseract struct {
	language string
	logger   *logrus.Logger
}

func NewTesseract(cfg *config.OCRConfig, logger *logrus.Logger) (*Tesseract, error) {
	language := cfg.Language
	if language == "" {
		language = "eng"
	}

	logger.WithFields(logrus.Fields{
		"language": language,
		"version":  gosseract.Version(),
	}).Info("Tesseract OCR enabled")

	return &Tesseract{
		language: language,
		logger:   logger,
	}, nil
}

type tesseractResult struct {
	text string
	err  error
}

// Recognize returns early when ctx is done; the engine itself cannot be
// interrupted and finishes in the background.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrRecognitionFailed)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}

	done := make(chan tesseractResult, 1)
	go func() {
		text, err := t.recognize(image)
		done <- tesseractResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, ctx.Err())
	case res := <-done:
		if res.err != nil {
			t.logger.WithError(res.err).WithField("content_type", contentType).Error("Tesseract failed to read image")
			return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, res.err)
		}
		t.logger.WithField("chars", len(res.text)).Debug("Text recognized")
		return strings.TrimSpace(res.text), nil
	}
}

// gosseract clients are not safe for concurrent use, so each call gets its own.
func (t *Tesseract) recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}
