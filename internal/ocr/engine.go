package ocr

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/config"
)

// New returns the Recognizer selected by cfg.Engine.
func New(cfg *config.OCRConfig, logger *logrus.Logger) (Recognizer, error) {
	switch cfg.Engine {
	case config.OCREngineHTTP, "":
		return NewClient(cfg, logger), nil
	case config.OCREngineTesseract:
		t, err := NewTesseract(cfg, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}
