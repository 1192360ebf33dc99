package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dbskills/enrollment/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoOTPRepository keeps a single item per phone number
// (PK=OTP#<phone>, SK=ACTIVE). Writing a new code overwrites the item, which
// makes Replace atomic. The TTL attribute lets DynamoDB drop expired codes.
type DynamoOTPRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoOTPRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoOTPRepository {
	return &DynamoOTPRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *DynamoOTPRepository) DeleteAll(ctx context.Context, phoneNumber string) error {
	rec := &models.OTPRecord{PhoneNumber: phoneNumber}

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       otpKey(rec),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to delete OTP from DynamoDB")
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) Insert(ctx context.Context, rec *models.OTPRecord) error {
	return r.put(ctx, rec)
}

// Replace supersedes any earlier code for the number in one PutItem.
func (r *DynamoOTPRepository) Replace(ctx context.Context, rec *models.OTPRecord) error {
	return r.put(ctx, rec)
}

func (r *DynamoOTPRepository) put(ctx context.Context, rec *models.OTPRecord) error {
	item, err := otpToItem(rec)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) FindActive(ctx context.Context, phoneNumber string, now time.Time) ([]*models.OTPRecord, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            otpKey(&models.OTPRecord{PhoneNumber: phoneNumber}),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var rec models.OTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}

	// TTL deletion runs in the background and can lag by hours
	if !rec.Active(now) {
		return nil, nil
	}

	return []*models.OTPRecord{&rec}, nil
}

// Update flips the consumed flag only while the stored item is still the
// same issuance and has not been consumed yet.
func (r *DynamoOTPRepository) Update(ctx context.Context, rec *models.OTPRecord) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 otpKey(rec),
		UpdateExpression:    aws.String("SET #consumed = :consumed"),
		ConditionExpression: aws.String("#id = :id AND #consumed = :unconsumed"),
		ExpressionAttributeNames: map[string]string{
			"#id":       "id",
			"#consumed": "consumed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":consumed":   &types.AttributeValueMemberBOOL{Value: rec.Consumed},
			":unconsumed": &types.AttributeValueMemberBOOL{Value: false},
			":id":         &types.AttributeValueMemberS{Value: rec.ID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrOTPNotFound
		}
		r.logger.WithError(err).Error("Failed to update OTP in DynamoDB")
		return fmt.Errorf("failed to update OTP: %w", err)
	}

	return nil
}

func otpKey(rec *models.OTPRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: rec.GetPK()},
		"SK": &types.AttributeValueMemberS{Value: rec.GetSK()},
	}
}

func otpToItem(rec *models.OTPRecord) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OTP data: %w", err)
	}

	for k, v := range otpKey(rec) {
		item[k] = v
	}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt.Unix(), 10)}

	return item, nil
}
