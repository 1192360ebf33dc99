package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dbskills/enrollment/internal/models"
)

var (
	mobileRe = regexp.MustCompile(`^\d{10}$`)
	aadharRe = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}$`)
	otpRe    = regexp.MustCompile(`^\d{4}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobileRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("aadhar", func(fl validator.FieldLevel) bool {
		return aadharRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otpRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.ValidCategory(fl.Field().String())
	})
	v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return models.CandidateStatus(fl.Field().String()).Valid()
	})
	return v
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// respondWithValidationError reports err from validate.Struct as a 400.
func respondWithValidationError(w http.ResponseWriter, message string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondWithError(w, http.StatusBadRequest, message)
		return
	}
	respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
		Success: false,
		Message: message,
		Errors:  formatValidationErrors(verrs),
	})
}

func formatValidationErrors(errs validator.ValidationErrors) []ValidationError {
	details := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "mobile":
			message = fmt.Sprintf("Field '%s' must be a 10-digit mobile number", err.Field())
		case "aadhar":
			message = fmt.Sprintf("Field '%s' must be formatted as XXXX-XXXX-XXXX", err.Field())
		case "otp":
			message = fmt.Sprintf("Field '%s' must be a 4-digit code", err.Field())
		case "datetime":
			message = fmt.Sprintf("Field '%s' must be a date formatted as YYYY-MM-DD", err.Field())
		case "category":
			message = fmt.Sprintf("Field '%s' must be a known training category", err.Field())
		case "status":
			message = fmt.Sprintf("Field '%s' must be one of Enrolled, In Progress, Completed or Dropped", err.Field())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s in length", err.Field(), err.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, ValidationError{Field: err.Field(), Message: message})
	}
	return details
}
