package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/docparse"
	"github.com/dbskills/enrollment/internal/middleware"
	"github.com/dbskills/enrollment/internal/models"
	"github.com/dbskills/enrollment/internal/ocr"
	"github.com/dbskills/enrollment/internal/repository"
	"github.com/dbskills/enrollment/internal/service"
)

type CandidateHandlers struct {
	candidateService *service.CandidateService
	recognizer       ocr.Recognizer
	maxUploadBytes   int64
	logger           *logrus.Logger
}

func NewCandidateHandlers(
	candidateService *service.CandidateService,
	recognizer ocr.Recognizer,
	maxUploadBytes int64,
	logger *logrus.Logger,
) *CandidateHandlers {
	return &CandidateHandlers{
		candidateService: candidateService,
		recognizer:       recognizer,
		maxUploadBytes:   maxUploadBytes,
		logger:           logger,
	}
}

type ExtractIdentityResponse struct {
	Success bool              `json:"success"`
	Data    docparse.Identity `json:"data"`
}

type CheckRecordRequest struct {
	AadharNumber string `json:"aadharNumber" validate:"omitempty,aadhar"`
	Mobile       string `json:"mobile" validate:"omitempty,mobile"`
}

type CheckRecordResponse struct {
	Success   bool                     `json:"success"`
	Exists    bool                     `json:"exists"`
	Message   string                   `json:"message"`
	Candidate *models.CandidateSummary `json:"candidate,omitempty"`
}

type RegisterRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	DOB          string `json:"dob" validate:"required,datetime=2006-01-02"`
	AadharNumber string `json:"aadharNumber" validate:"required,aadhar"`
	Mobile       string `json:"mobile" validate:"required,mobile"`
	Address      string `json:"address" validate:"required,max=500"`
	Program      string `json:"program" validate:"required"`
	Category     string `json:"category" validate:"required,category"`
	Center       string `json:"center" validate:"required"`
	Trainer      string `json:"trainer" validate:"required"`
	Duration     string `json:"duration" validate:"required"`
}

type CandidateResponse struct {
	Success   bool                     `json:"success"`
	Message   string                   `json:"message,omitempty"`
	Candidate *models.CandidateSummary `json:"candidate"`
}

type CandidateDetailResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Candidate *models.Candidate `json:"candidate"`
}

type CandidateListResponse struct {
	Success bool `json:"success"`
	*service.CandidatePage
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,status"`
}

// ExtractIdentity runs text recognition on the uploaded ID card image and
// pre-fills name, date of birth and Aadhaar number from it. Fields that
// could not be found come back empty.
func (h *CandidateHandlers) ExtractIdentity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Image file is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read uploaded image")
		respondWithError(w, http.StatusBadRequest, "Image file is required")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(contentType, "image/") {
		respondWithError(w, http.StatusBadRequest, "Uploaded file must be an image")
		return
	}

	text, err := h.recognizer.Recognize(r.Context(), image, contentType)
	if err != nil {
		h.logger.WithError(err).Error("Failed to recognize text in image")
		respondWithError(w, http.StatusBadGateway, "Failed to extract data from the image")
		return
	}

	identity := docparse.Parse(text)
	h.logger.WithFields(logrus.Fields{
		"has_name":   identity.Name != "",
		"has_dob":    identity.DateOfBirth != "",
		"has_aadhar": identity.IDNumber != "",
	}).Info("Identity extracted")

	respondWithJSON(w, http.StatusOK, ExtractIdentityResponse{Success: true, Data: identity})
}

func (h *CandidateHandlers) CheckRecord(w http.ResponseWriter, r *http.Request) {
	var req CheckRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.AadharNumber = strings.TrimSpace(req.AadharNumber)
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.AadharNumber == "" && req.Mobile == "" {
		respondWithError(w, http.StatusBadRequest, "Aadhar number or mobile is required")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondWithValidationError(w, "Invalid Aadhar number or mobile", err)
		return
	}

	candidate, err := h.candidateService.CheckRecord(r.Context(), req.AadharNumber, req.Mobile)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check candidate record")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if candidate == nil {
		respondWithJSON(w, http.StatusOK, CheckRecordResponse{
			Success: true,
			Exists:  false,
			Message: "New candidate - proceed to registration",
		})
		return
	}

	summary := candidate.Summary()
	respondWithJSON(w, http.StatusOK, CheckRecordResponse{
		Success:   true,
		Exists:    true,
		Message:   "Candidate already exists",
		Candidate: &summary,
	})
}

// Register enrolls a candidate. The route is wrapped by
// RequireVerifiedMobile and the token must belong to the submitted mobile.
func (h *CandidateHandlers) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Mobile verification is required")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.AadharNumber = strings.TrimSpace(req.AadharNumber)
	if err := validate.Struct(req); err != nil {
		respondWithValidationError(w, "Invalid registration details", err)
		return
	}

	if claims.Phone != req.Mobile {
		respondWithError(w, http.StatusForbidden, "Verification token does not match mobile number")
		return
	}

	verifiedAt := time.Now()
	if claims.IssuedAt != nil {
		verifiedAt = claims.IssuedAt.Time
	}
	candidate := &models.Candidate{
		Name:         req.Name,
		DOB:          req.DOB,
		AadharNumber: req.AadharNumber,
		Mobile:       req.Mobile,
		Address:      strings.TrimSpace(req.Address),
		Program:      req.Program,
		Category:     req.Category,
		Center:       req.Center,
		Trainer:      req.Trainer,
		Duration:     req.Duration,
	}

	created, err := h.candidateService.Register(r.Context(), candidate, &verifiedAt)
	if err != nil {
		if errors.Is(err, repository.ErrCandidateExists) {
			respondWithError(w, http.StatusBadRequest, "Candidate with this Aadhar or mobile number already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to register candidate")
		respondWithError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	summary := created.Summary()
	respondWithJSON(w, http.StatusCreated, CandidateResponse{
		Success:   true,
		Message:   "Candidate registered successfully",
		Candidate: &summary,
	})
}

func (h *CandidateHandlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.CandidateQuery{
		AadharNumber: strings.TrimSpace(q.Get("aadhar")),
		Mobile:       strings.TrimSpace(q.Get("mobile")),
		CandidateID:  strings.TrimSpace(q.Get("candidateId")),
	}
	if query.Empty() {
		respondWithError(w, http.StatusBadRequest, "Search parameter is required")
		return
	}

	candidate, err := h.candidateService.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, repository.ErrCandidateNotFound) {
			respondWithError(w, http.StatusNotFound, "Candidate not found")
			return
		}
		h.logger.WithError(err).Error("Failed to search candidates")
		respondWithError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	respondWithJSON(w, http.StatusOK, CandidateDetailResponse{Success: true, Candidate: candidate})
}

func (h *CandidateHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	limit := queryInt(q.Get("limit"), 10)
	status := models.CandidateStatus(q.Get("status"))

	result, err := h.candidateService.List(r.Context(), status, page, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		h.logger.WithError(err).Error("Failed to list candidates")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch candidates")
		return
	}

	respondWithJSON(w, http.StatusOK, CandidateListResponse{Success: true, CandidatePage: result})
}

func (h *CandidateHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	candidateID := mux.Vars(r)["candidateId"]

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondWithValidationError(w, "Invalid status", err)
		return
	}

	candidate, err := h.candidateService.UpdateStatus(r.Context(), candidateID, models.CandidateStatus(req.Status))
	if err != nil {
		if errors.Is(err, repository.ErrCandidateNotFound) {
			respondWithError(w, http.StatusNotFound, "Candidate not found")
			return
		}
		h.logger.WithError(err).Error("Failed to update candidate status")
		respondWithError(w, http.StatusInternalServerError, "Failed to update status")
		return
	}

	respondWithJSON(w, http.StatusOK, CandidateDetailResponse{
		Success:   true,
		Message:   "Status updated successfully",
		Candidate: candidate,
	})
}

func queryInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
