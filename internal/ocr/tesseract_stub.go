//go:build !tesseract

package ocr

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/config"
)

var ErrTesseractUnavailable = errors.New("tesseract support not compiled in, rebuild with -tags tesseract")

// Tesseract is only functional in binaries built with the tesseract tag.
type Tesseract struct{}

func NewTesseract(cfg *config.OCRConfig, logger *logrus.Logger) (*Tesseract, error) {
	return nil, ErrTesseractUnavailable
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	return "", ErrTesseractUnavailable
}
