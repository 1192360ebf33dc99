package repository

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbskills/enrollment/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newOTPRecord(id, phone string, createdAt time.Time) *models.OTPRecord {
	return &models.OTPRecord{
		ID:          id,
		PhoneNumber: phone,
		CodeHash:    "hash-" + id,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(5 * time.Minute),
	}
}

func TestDynamoOTPRepository_ReplaceKeepsOneItem(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Replace(ctx, newOTPRecord("first", "9876543210", now)))
	require.NoError(t, repo.Replace(ctx, newOTPRecord("second", "9876543210", now.Add(time.Second))))

	require.Len(t, db.items, 1)
	item := db.items["OTP#9876543210|ACTIVE"]
	require.NotNil(t, item)
	assert.Equal(t, "second", attrString(item["id"]))

	ttl, ok := item["TTL"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(now.Add(time.Second+5*time.Minute).Unix(), 10), ttl.Value)

	active, err := repo.FindActive(ctx, "9876543210", now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "second", active[0].ID)
	assert.Equal(t, "hash-second", active[0].CodeHash)
}

func TestDynamoOTPRepository_FindActiveFiltersExpiredAndConsumed(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoOTPRepository(newFakeDynamo(), "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	active, err := repo.FindActive(ctx, "9876543210", now)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.Insert(ctx, newOTPRecord("a", "9876543210", now)))

	active, err = repo.FindActive(ctx, "9876543210", now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, active, "item still present until TTL sweep but must not be returned")

	rec := newOTPRecord("a", "9876543210", now)
	rec.Consumed = true
	require.NoError(t, repo.Update(ctx, rec))

	active, err = repo.FindActive(ctx, "9876543210", now)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDynamoOTPRepository_UpdateConsumesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoOTPRepository(newFakeDynamo(), "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newOTPRecord("a", "9876543210", now)))

	rec := newOTPRecord("a", "9876543210", now)
	rec.Consumed = true
	require.NoError(t, repo.Update(ctx, rec))
	assert.ErrorIs(t, repo.Update(ctx, rec), ErrOTPNotFound)
}

func TestDynamoOTPRepository_UpdateUsesNamePlaceholders(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newOTPRecord("a", "9876543210", now)))

	// "consumed" is a reserved word, a bare reference is a validation error
	rec := newOTPRecord("a", "9876543210", now)
	_, err := db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String("EnrollmentTable"),
		Key:                 otpKey(rec),
		UpdateExpression:    aws.String("SET consumed = :consumed"),
		ConditionExpression: aws.String("id = :id AND consumed = :unconsumed"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":consumed":   &types.AttributeValueMemberBOOL{Value: true},
			":unconsumed": &types.AttributeValueMemberBOOL{Value: false},
			":id":         &types.AttributeValueMemberS{Value: "a"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved keyword")
	var condErr *types.ConditionalCheckFailedException
	assert.False(t, errors.As(err, &condErr))

	rec.Consumed = true
	require.NoError(t, repo.Update(ctx, rec))
	assert.True(t, attrBool(db.items["OTP#9876543210|ACTIVE"]["consumed"]))
}

func TestDynamoOTPRepository_UpdateSupersededRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoOTPRepository(newFakeDynamo(), "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newOTPRecord("old", "9876543210", now)))
	require.NoError(t, repo.Replace(ctx, newOTPRecord("new", "9876543210", now)))

	old := newOTPRecord("old", "9876543210", now)
	old.Consumed = true
	assert.ErrorIs(t, repo.Update(ctx, old), ErrOTPNotFound)
}

func TestDynamoOTPRepository_DeleteAll(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "EnrollmentTable", testLogger())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newOTPRecord("a", "9876543210", now)))
	require.NoError(t, repo.DeleteAll(ctx, "9876543210"))
	assert.Empty(t, db.items)

	// deleting nothing is not an error
	require.NoError(t, repo.DeleteAll(ctx, "9876543210"))
}

func TestDynamoOTPRepository_ClientErrors(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	db.err = errors.New("throttled")
	repo := NewDynamoOTPRepository(db, "EnrollmentTable", testLogger())
	now := time.Now()

	assert.ErrorContains(t, repo.Insert(ctx, newOTPRecord("a", "9876543210", now)), "throttled")
	assert.ErrorContains(t, repo.DeleteAll(ctx, "9876543210"), "throttled")

	_, err := repo.FindActive(ctx, "9876543210", now)
	assert.ErrorContains(t, err, "throttled")

	err = repo.Update(ctx, newOTPRecord("a", "9876543210", now))
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrOTPNotFound)
}
