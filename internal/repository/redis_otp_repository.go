package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dbskills/enrollment/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOTPRepository stores the current code for a phone number under
// otp:<phone>. SET overwrites the previous code atomically and the key TTL
// expires it.
type RedisOTPRepository struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewRedisOTPRepository(client redis.UniversalClient, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		logger: logger,
	}
}

func otpRedisKey(phoneNumber string) string {
	return fmt.Sprintf("otp:%s", phoneNumber)
}

func (r *RedisOTPRepository) DeleteAll(ctx context.Context, phoneNumber string) error {
	if err := r.client.Del(ctx, otpRedisKey(phoneNumber)).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to delete OTP from Redis")
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}

func (r *RedisOTPRepository) Insert(ctx context.Context, rec *models.OTPRecord) error {
	return r.set(ctx, rec)
}

func (r *RedisOTPRepository) Replace(ctx context.Context, rec *models.OTPRecord) error {
	return r.set(ctx, rec)
}

func (r *RedisOTPRepository) set(ctx context.Context, rec *models.OTPRecord) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to store OTP: already expired")
	}

	dataJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP data: %w", err)
	}

	if err := r.client.Set(ctx, otpRedisKey(rec.PhoneNumber), dataJSON, ttl).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) FindActive(ctx context.Context, phoneNumber string, now time.Time) ([]*models.OTPRecord, error) {
	dataJSON, err := r.client.Get(ctx, otpRedisKey(phoneNumber)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to get OTP from Redis")
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var rec models.OTPRecord
	if err := json.Unmarshal([]byte(dataJSON), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}

	if !rec.Active(now) {
		return nil, nil
	}

	return []*models.OTPRecord{&rec}, nil
}

// Update marks the stored code consumed inside WATCH/MULTI so two concurrent
// verifications of the same code cannot both succeed.
func (r *RedisOTPRepository) Update(ctx context.Context, rec *models.OTPRecord) error {
	key := otpRedisKey(rec.PhoneNumber)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		dataJSON, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrOTPNotFound
		}
		if err != nil {
			return err
		}

		var stored models.OTPRecord
		if err := json.Unmarshal([]byte(dataJSON), &stored); err != nil {
			return fmt.Errorf("failed to unmarshal OTP data: %w", err)
		}
		if stored.ID != rec.ID || stored.Consumed {
			return ErrOTPNotFound
		}

		stored.Consumed = rec.Consumed
		updatedJSON, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal OTP data: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updatedJSON, redis.KeepTTL)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOTPNotFound), errors.Is(err, redis.TxFailedErr):
		return ErrOTPNotFound
	default:
		r.logger.WithError(err).Error("Failed to update OTP in Redis")
		return fmt.Errorf("failed to update OTP: %w", err)
	}
}
