package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/sirupsen/logrus"
	twilio "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// messageCreator is the part of the Twilio API client used to send SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers text messages through Twilio's Messages API.
type TwilioSender struct {
	api         messageCreator
	fromNumber  string
	countryCode string
	logger      *logrus.Logger
}

func NewTwilioSender(cfg *config.TwilioConfig, logger *logrus.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioSender{
		api:         client.Api,
		fromNumber:  cfg.FromNumber,
		countryCode: cfg.CountryCode,
		logger:      logger,
	}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.e164(to))
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		s.logger.WithError(err).Error("Failed to send SMS via Twilio")
		return fmt.Errorf("failed to send sms via twilio: %w", err)
	}

	if resp != nil && resp.Sid != nil {
		s.logger.WithField("sid", *resp.Sid).Debug("SMS queued")
	}
	return nil
}

// e164 prefixes a bare national number with the configured country code.
func (s *TwilioSender) e164(number string) string {
	if strings.HasPrefix(number, "+") {
		return number
	}
	return s.countryCode + number
}

// LogSender writes messages to the log instead of sending them. It is used
// when Twilio credentials are not configured.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.WithField("to", to).Warn("SMS delivery disabled, message not sent")
	return nil
}

// NewSender picks Twilio when it is configured and the log sender otherwise.
func NewSender(cfg *config.TwilioConfig, logger *logrus.Logger) Sender {
	if cfg.Enabled() {
		return NewTwilioSender(cfg, logger)
	}
	logger.Warn("Twilio credentials not configured, SMS will only be logged")
	return NewLogSender(logger)
}
