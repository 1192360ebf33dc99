package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dbskills/enrollment/internal/models"
)

// MemoryCandidateRepository is an in-process CandidateRepository for local
// development and tests.
type MemoryCandidateRepository struct {
	mu       sync.RWMutex
	byID     map[string]*models.Candidate
	byAadhar map[string]string
	byMobile map[string]string
}

func NewMemoryCandidateRepository() *MemoryCandidateRepository {
	return &MemoryCandidateRepository{
		byID:     make(map[string]*models.Candidate),
		byAadhar: make(map[string]string),
		byMobile: make(map[string]string),
	}
}

func (r *MemoryCandidateRepository) Create(ctx context.Context, c *models.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAadhar[c.AadharNumber]; ok {
		return ErrCandidateExists
	}
	if _, ok := r.byMobile[c.Mobile]; ok {
		return ErrCandidateExists
	}
	if _, ok := r.byID[c.CandidateID]; ok {
		return ErrCandidateIDTaken
	}

	stored := *c
	r.byID[c.CandidateID] = &stored
	r.byAadhar[c.AadharNumber] = c.CandidateID
	r.byMobile[c.Mobile] = c.CandidateID
	return nil
}

func (r *MemoryCandidateRepository) FindByAadharOrMobile(ctx context.Context, aadharNumber, mobile string) (*models.Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byAadhar[aadharNumber]; ok && aadharNumber != "" {
		return r.copyOf(id), nil
	}
	if id, ok := r.byMobile[mobile]; ok && mobile != "" {
		return r.copyOf(id), nil
	}
	return nil, nil
}

func (r *MemoryCandidateRepository) Search(ctx context.Context, q models.CandidateQuery) (*models.Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if q.Empty() {
		return nil, nil
	}
	for _, c := range r.byID {
		if q.Matches(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryCandidateRepository) List(ctx context.Context, filter ListFilter) ([]*models.Candidate, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*models.Candidate
	for _, c := range r.byID {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start, end := filter.bounds(len(all))
	return all[start:end], len(all), nil
}

func (r *MemoryCandidateRepository) UpdateStatus(ctx context.Context, candidateID string, status models.CandidateStatus, at time.Time) (*models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[candidateID]
	if !ok {
		return nil, ErrCandidateNotFound
	}

	c.Status = status
	c.UpdatedAt = at
	if status == models.StatusCompleted {
		completed := at
		c.CompletionDate = &completed
	}

	cp := *c
	return &cp, nil
}

// copyOf returns a detached copy of the stored candidate. Caller holds mu.
func (r *MemoryCandidateRepository) copyOf(candidateID string) *models.Candidate {
	c, ok := r.byID[candidateID]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}
