// Package ocr turns an uploaded ID card photo into raw text, either through
// an HTTP recognition service or an in-process Tesseract engine.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrRecognitionFailed is returned when the service could not be reached or
// answered with an error.
var ErrRecognitionFailed = errors.New("text recognition failed")

// Recognizer extracts text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}

type recognizeRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

type recognizeResponse struct {
	RawAnswerText string  `json:"raw_answer_text"`
	Confidence    float64 `json:"confidence,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client posts images to an HTTP OCR endpoint.
type Client struct {
	endpoint string
	language string
	http     *http.Client
	logger   *logrus.Logger
}

func NewClient(cfg *config.OCRConfig, logger *logrus.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		language: cfg.Language,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

func (c *Client) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrRecognitionFailed)
	}

	payload, err := json.Marshal(recognizeRequest{
		Image:       base64.StdEncoding.EncodeToString(image),
		ContentType: contentType,
		Locale:      c.language,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Failed to reach OCR service")
		return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrRecognitionFailed, err)
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"error":  msg,
		}).Error("OCR service returned an error")
		return "", fmt.Errorf("%w: %s (status %d)", ErrRecognitionFailed, msg, resp.StatusCode)
	}

	var out recognizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrRecognitionFailed, err)
	}

	c.logger.WithFields(logrus.Fields{
		"chars":      len(out.RawAnswerText),
		"confidence": out.Confidence,
	}).Debug("Text recognized")

	return strings.TrimSpace(out.RawAnswerText), nil
}
