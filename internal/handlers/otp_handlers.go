package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dbskills/enrollment/internal/service"
	"github.com/sirupsen/logrus"
)

type OTPHandlers struct {
	otpService *service.OTPService
	jwtService *service.JWTService
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService *service.OTPService, jwtService *service.JWTService, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		jwtService: jwtService,
		logger:     logger,
	}
}

type SendOTPRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

type VerifyOTPRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
	OTP    string `json:"otp" validate:"required,otp"`
}

type VerifyOTPResponse struct {
	service.Result
	*service.VerificationToken
}

func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Mobile = strings.TrimSpace(req.Mobile)
	if err := validate.Struct(req); err != nil {
		respondWithValidationError(w, "Valid 10-digit mobile number is required", err)
		return
	}

	result := h.otpService.Issue(r.Context(), req.Mobile)
	if !result.Success {
		respondWithJSON(w, http.StatusInternalServerError, result)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// VerifyOTP redeems the code and hands back a verification token that the
// registration endpoint requires.
func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Mobile = strings.TrimSpace(req.Mobile)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := validate.Struct(req); err != nil {
		respondWithValidationError(w, "Mobile number and OTP are required", err)
		return
	}

	result := h.otpService.Verify(r.Context(), req.Mobile, req.OTP)
	if !result.Success {
		status := http.StatusBadRequest
		if result.Message == service.MsgOTPVerifyError {
			status = http.StatusInternalServerError
		}
		respondWithJSON(w, status, result)
		return
	}

	token, err := h.jwtService.IssueVerificationToken(req.Mobile)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue verification token")
		respondWithError(w, http.StatusInternalServerError, service.MsgOTPVerifyError)
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Result:            result,
		VerificationToken: token,
	})
}
