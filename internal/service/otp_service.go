package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/dbskills/enrollment/internal/models"
	"github.com/dbskills/enrollment/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	MsgOTPSent        = "OTP sent successfully"
	MsgOTPSendFailed  = "Failed to send OTP"
	MsgOTPVerified    = "OTP verified successfully"
	MsgOTPInvalid     = "Invalid or expired OTP"
	MsgOTPVerifyError = "Failed to verify OTP"
)

const (
	otpMin = 1000
	otpMax = 9999
)

// Notifier delivers a text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// Result is what the OTP operations report back to the caller. It never
// carries the code itself.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type OTPService struct {
	repo     repository.OTPRepository
	notifier Notifier
	cfg      *config.OTPConfig
	logger   *logrus.Logger
	now      func() time.Time
}

func NewOTPService(repo repository.OTPRepository, notifier Notifier, cfg *config.OTPConfig, logger *logrus.Logger) *OTPService {
	return &OTPService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue supersedes any earlier code for phoneNumber, stores a fresh one and
// sends it out. Only a storage failure makes it fail; a delivery failure is
// logged.
func (s *OTPService) Issue(ctx context.Context, phoneNumber string) Result {
	otp, err := generateOTP()
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate OTP")
		return Result{Success: false, Message: MsgOTPSendFailed}
	}

	hashedOTP, err := bcrypt.GenerateFromPassword([]byte(otp), s.bcryptCost())
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash OTP")
		return Result{Success: false, Message: MsgOTPSendFailed}
	}

	now := s.now()
	rec := &models.OTPRecord{
		ID:          uuid.New().String(),
		PhoneNumber: phoneNumber,
		CodeHash:    string(hashedOTP),
		Consumed:    false,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Expiry),
	}

	if err := s.store(ctx, rec); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to store OTP")
		return Result{Success: false, Message: MsgOTPSendFailed}
	}

	if s.cfg.LogCodes {
		s.logger.WithFields(logrus.Fields{
			"phone": phoneNumber,
			"otp":   otp,
		}).Info("OTP generated (logged for development)")
	}

	body := fmt.Sprintf("Your DB Skills Portal verification code is: %s. Valid for %d minutes.", otp, int(s.cfg.Expiry.Minutes()))
	if err := s.notifier.Send(ctx, phoneNumber, body); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Warn("Failed to deliver OTP, code remains valid")
	}

	return Result{Success: true, Message: MsgOTPSent}
}

// store writes rec as the only code for its number. Without an atomic
// replace the old codes are deleted first; a crash in between leaves the
// number with no code at all.
func (s *OTPService) store(ctx context.Context, rec *models.OTPRecord) error {
	if replacer, ok := s.repo.(repository.Replacer); ok {
		return replacer.Replace(ctx, rec)
	}

	if err := s.repo.DeleteAll(ctx, rec.PhoneNumber); err != nil {
		return err
	}
	return s.repo.Insert(ctx, rec)
}

// Verify redeems code for phoneNumber. Wrong, used and expired codes all
// produce the same MsgOTPInvalid result.
func (s *OTPService) Verify(ctx context.Context, phoneNumber, code string) Result {
	records, err := s.repo.FindActive(ctx, phoneNumber, s.now())
	if err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to look up OTP")
		return Result{Success: false, Message: MsgOTPVerifyError}
	}

	var match *models.OTPRecord
	for _, rec := range records {
		if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) == nil {
			match = rec
			break
		}
	}
	if match == nil {
		return Result{Success: false, Message: MsgOTPInvalid}
	}

	match.Consumed = true
	if err := s.repo.Update(ctx, match); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return Result{Success: false, Message: MsgOTPInvalid}
		}
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to consume OTP")
		return Result{Success: false, Message: MsgOTPVerifyError}
	}

	return Result{Success: true, Message: MsgOTPVerified}
}

func (s *OTPService) bcryptCost() int {
	if s.cfg.BcryptCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return s.cfg.BcryptCost
}

// generateOTP returns a uniformly random code in [1000, 9999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
