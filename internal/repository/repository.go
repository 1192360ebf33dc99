package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dbskills/enrollment/internal/models"
)

var (
	// ErrOTPNotFound is returned when an OTP record is missing, consumed,
	// expired or was superseded by a newer issuance.
	ErrOTPNotFound = errors.New("otp not found or expired")

	ErrCandidateExists   = errors.New("candidate already exists")
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrCandidateIDTaken means only the generated candidate ID collided;
	// the Aadhaar number and mobile are still free.
	ErrCandidateIDTaken = errors.New("candidate id already taken")
)

// OTPRepository stores one-time passcode records keyed by phone number.
// Stores expire records on their own once ExpiresAt passes.
type OTPRepository interface {
	// DeleteAll removes every record held for phoneNumber.
	DeleteAll(ctx context.Context, phoneNumber string) error
	Insert(ctx context.Context, rec *models.OTPRecord) error
	// FindActive returns the unconsumed records for phoneNumber that expire after now.
	FindActive(ctx context.Context, phoneNumber string, now time.Time) ([]*models.OTPRecord, error)
	// Update persists rec.Consumed. It fails with ErrOTPNotFound when the
	// stored record is gone, replaced, or already consumed.
	Update(ctx context.Context, rec *models.OTPRecord) error
}

// Replacer is implemented by stores that can supersede every record for a
// phone number and write a new one in a single atomic step.
type Replacer interface {
	Replace(ctx context.Context, rec *models.OTPRecord) error
}

// CandidateRepository stores enrolled candidates. Aadhaar number, mobile and
// candidate ID are each unique.
type CandidateRepository interface {
	Create(ctx context.Context, c *models.Candidate) error
	// FindByAadharOrMobile returns the candidate holding either value, or nil.
	FindByAadharOrMobile(ctx context.Context, aadharNumber, mobile string) (*models.Candidate, error)
	// Search returns the candidate matching every non-empty field of q, or nil.
	Search(ctx context.Context, q models.CandidateQuery) (*models.Candidate, error)
	// List returns one page of candidates, newest first, and the total count.
	List(ctx context.Context, filter ListFilter) ([]*models.Candidate, int, error)
	UpdateStatus(ctx context.Context, candidateID string, status models.CandidateStatus, at time.Time) (*models.Candidate, error)
}

type ListFilter struct {
	Status models.CandidateStatus
	Page   int
	Limit  int
}

// bounds returns the slice indexes of the requested page within total items.
// Pages past the end yield an empty range.
func (f ListFilter) bounds(total int) (int, int) {
	if f.Limit < 1 || f.Page < 1 {
		return total, total
	}
	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	if f.Page > pages {
		return total, total
	}

	start := (f.Page - 1) * f.Limit
	end := total
	if f.Limit < total-start {
		end = start + f.Limit
	}
	return start, end
}
