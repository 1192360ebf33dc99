package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbskills/enrollment/internal/models"
	"github.com/dbskills/enrollment/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrInvalidStatus = errors.New("invalid status")

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	candidateIDAttempts = 5
)

type CandidateService struct {
	repo   repository.CandidateRepository
	logger *logrus.Logger
	now    func() time.Time
}

func NewCandidateService(repo repository.CandidateRepository, logger *logrus.Logger) *CandidateService {
	return &CandidateService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CheckRecord returns the existing candidate holding aadharNumber or mobile,
// or nil when the trainee is new.
func (s *CandidateService) CheckRecord(ctx context.Context, aadharNumber, mobile string) (*models.Candidate, error) {
	return s.repo.FindByAadharOrMobile(ctx, aadharNumber, mobile)
}

// Register enrolls c after checking that neither its Aadhaar number nor its
// mobile is taken. verifiedAt is set when the mobile passed OTP verification.
func (s *CandidateService) Register(ctx context.Context, c *models.Candidate, verifiedAt *time.Time) (*models.Candidate, error) {
	existing, err := s.repo.FindByAadharOrMobile(ctx, c.AadharNumber, c.Mobile)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing candidate: %w", err)
	}
	if existing != nil {
		return nil, repository.ErrCandidateExists
	}

	now := s.now()
	c.ID = uuid.New().String()
	c.Status = models.StatusEnrolled
	c.EnrollmentDate = now
	c.CreatedAt = now
	c.UpdatedAt = now
	c.CompletionDate = nil
	c.IsVerified = verifiedAt != nil
	c.VerificationDate = verifiedAt

	// The six digit ID wraps every ~16 minutes, so a collision gets a fresh
	// ID from the next millisecond.
	for attempt := 0; ; attempt++ {
		c.CandidateID = newCandidateID(now.Add(time.Duration(attempt) * time.Millisecond))
		err = s.repo.Create(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrCandidateIDTaken) {
			return nil, err
		}
		if attempt+1 == candidateIDAttempts {
			return nil, fmt.Errorf("failed to allocate candidate id: %w", err)
		}
		s.logger.WithField("candidate_id", c.CandidateID).Warn("Candidate ID taken, retrying")
	}

	s.logger.WithFields(logrus.Fields{
		"candidate_id": c.CandidateID,
		"program":      c.Program,
		"center":       c.Center,
	}).Info("Candidate registered")

	return c, nil
}

// Search finds the candidate matching every non-empty field of q.
func (s *CandidateService) Search(ctx context.Context, q models.CandidateQuery) (*models.Candidate, error) {
	c, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, repository.ErrCandidateNotFound
	}
	return c, nil
}

type CandidatePage struct {
	Candidates  []*models.Candidate `json:"candidates"`
	TotalPages  int                 `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
	Total       int                 `json:"total"`
}

func (s *CandidateService) List(ctx context.Context, status models.CandidateStatus, page, limit int) (*CandidatePage, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	candidates, total, err := s.repo.List(ctx, repository.ListFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []*models.Candidate{}
	}

	return &CandidatePage{
		Candidates:  candidates,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		Total:       total,
	}, nil
}

// UpdateStatus moves a candidate to status, stamping the completion date
// when the training is completed.
func (s *CandidateService) UpdateStatus(ctx context.Context, candidateID string, status models.CandidateStatus) (*models.Candidate, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, candidateID, status, s.now())
}

// newCandidateID builds the public "DB" + six digit identifier from the
// registration time in milliseconds.
func newCandidateID(t time.Time) string {
	return fmt.Sprintf("DB%06d", t.UnixMilli()%1_000_000)
}
