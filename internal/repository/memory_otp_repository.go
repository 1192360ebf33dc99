package repository

import (
	"context"
	"sync"
	"time"

	"github.com/dbskills/enrollment/internal/models"
)

// MemoryOTPRepository keeps OTP records in process memory. It is meant for
// local development and tests. It does not implement Replacer, so issuing
// runs as DeleteAll followed by Insert and two concurrent issues for the
// same number may both land (last writer wins).
type MemoryOTPRepository struct {
	mu      sync.Mutex
	records map[string][]models.OTPRecord
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{
		records: make(map[string][]models.OTPRecord),
	}
}

func (r *MemoryOTPRepository) DeleteAll(ctx context.Context, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, phoneNumber)
	return nil
}

func (r *MemoryOTPRepository) Insert(ctx context.Context, rec *models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpired(rec.PhoneNumber, rec.CreatedAt)
	r.records[rec.PhoneNumber] = append(r.records[rec.PhoneNumber], *rec)
	return nil
}

func (r *MemoryOTPRepository) FindActive(ctx context.Context, phoneNumber string, now time.Time) ([]*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpired(phoneNumber, now)

	var active []*models.OTPRecord
	for i := range r.records[phoneNumber] {
		rec := r.records[phoneNumber][i]
		if rec.Active(now) {
			active = append(active, &rec)
		}
	}
	return active, nil
}

func (r *MemoryOTPRepository) Update(ctx context.Context, rec *models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.records[rec.PhoneNumber]
	for i := range stored {
		if stored[i].ID != rec.ID {
			continue
		}
		if stored[i].Consumed {
			return ErrOTPNotFound
		}
		stored[i].Consumed = rec.Consumed
		return nil
	}
	return ErrOTPNotFound
}

// evictExpired mimics store-side TTL expiry. Caller holds mu.
func (r *MemoryOTPRepository) evictExpired(phoneNumber string, now time.Time) {
	kept := r.records[phoneNumber][:0]
	for _, rec := range r.records[phoneNumber] {
		if rec.ExpiresAt.After(now) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		delete(r.records, phoneNumber)
		return
	}
	r.records[phoneNumber] = kept
}
