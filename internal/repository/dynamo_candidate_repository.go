package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dbskills/enrollment/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	candidateEntity = "CANDIDATE"
	guardSK         = "GUARD"
	aadharGuard     = "AADHAR#"
	mobileGuard     = "MOBILE#"
)

// DynamoCandidateRepository stores each candidate as one item plus two guard
// items (AADHAR#<number>, MOBILE#<number>) that point at it. All three are
// written in one transaction so duplicates are rejected by the table itself.
type DynamoCandidateRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoCandidateRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoCandidateRepository {
	return &DynamoCandidateRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *DynamoCandidateRepository) Create(ctx context.Context, c *models.Candidate) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal candidate for DynamoDB")
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: c.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: c.GetSK()}
	item["entity_type"] = &types.AttributeValueMemberS{Value: candidateEntity}

	notExists := aws.String("attribute_not_exists(PK)")

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: notExists,
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guardItem(aadharGuard+c.AadharNumber, c.CandidateID),
				ConditionExpression: notExists,
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guardItem(mobileGuard+c.Mobile, c.CandidateID),
				ConditionExpression: notExists,
			}},
		},
	})
	if err != nil {
		var txErr *types.TransactionCanceledException
		if errors.As(err, &txErr) {
			return cancellationError(txErr)
		}
		r.logger.WithError(err).Error("Failed to create candidate in DynamoDB")
		return fmt.Errorf("failed to create candidate: %w", err)
	}

	return nil
}

// cancellationError maps the per-item reasons of a cancelled Create. The
// reasons follow the order of the transaction: profile, Aadhaar guard,
// mobile guard.
func cancellationError(txErr *types.TransactionCanceledException) error {
	failed := func(i int) bool {
		return i < len(txErr.CancellationReasons) &&
			aws.ToString(txErr.CancellationReasons[i].Code) == "ConditionalCheckFailed"
	}
	if failed(0) && !failed(1) && !failed(2) {
		return ErrCandidateIDTaken
	}
	return ErrCandidateExists
}

func (r *DynamoCandidateRepository) FindByAadharOrMobile(ctx context.Context, aadharNumber, mobile string) (*models.Candidate, error) {
	if aadharNumber != "" {
		c, err := r.findByGuard(ctx, aadharGuard+aadharNumber)
		if err != nil || c != nil {
			return c, err
		}
	}

	if mobile != "" {
		return r.findByGuard(ctx, mobileGuard+mobile)
	}

	return nil, nil
}

func (r *DynamoCandidateRepository) Search(ctx context.Context, q models.CandidateQuery) (*models.Candidate, error) {
	var (
		c   *models.Candidate
		err error
	)

	switch {
	case q.CandidateID != "":
		c, err = r.getByCandidateID(ctx, q.CandidateID)
	case q.AadharNumber != "":
		c, err = r.findByGuard(ctx, aadharGuard+q.AadharNumber)
	case q.Mobile != "":
		c, err = r.findByGuard(ctx, mobileGuard+q.Mobile)
	}
	if err != nil || c == nil {
		return nil, err
	}

	if !q.Matches(c) {
		return nil, nil
	}
	return c, nil
}

func (r *DynamoCandidateRepository) List(ctx context.Context, filter ListFilter) ([]*models.Candidate, int, error) {
	filterExpr := "entity_type = :entity"
	values := map[string]types.AttributeValue{
		":entity": &types.AttributeValueMemberS{Value: candidateEntity},
	}
	var names map[string]string
	if filter.Status != "" {
		filterExpr += " AND #status = :status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
		names = map[string]string{"#status": "status"}
	}

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})

	var all []*models.Candidate
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan candidates in DynamoDB")
			return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
		}

		var batch []*models.Candidate
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal candidates: %w", err)
		}
		all = append(all, batch...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start, end := filter.bounds(len(all))
	return all[start:end], len(all), nil
}

func (r *DynamoCandidateRepository) UpdateStatus(ctx context.Context, candidateID string, status models.CandidateStatus, at time.Time) (*models.Candidate, error) {
	c := &models.Candidate{CandidateID: candidateID}

	updateExpression := "SET #status = :status, updated_at = :updated_at"
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(status)},
		":updated_at": &types.AttributeValueMemberS{Value: at.Format(time.RFC3339Nano)},
	}
	if status == models.StatusCompleted {
		updateExpression += ", completion_date = :completion_date"
		values[":completion_date"] = &types.AttributeValueMemberS{Value: at.Format(time.RFC3339Nano)}
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: c.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: c.GetSK()},
		},
		UpdateExpression:          aws.String(updateExpression),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrCandidateNotFound
		}
		r.logger.WithError(err).Error("Failed to update candidate in DynamoDB")
		return nil, fmt.Errorf("failed to update candidate: %w", err)
	}

	var updated models.Candidate
	if err := attributevalue.UnmarshalMap(result.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}
	return &updated, nil
}

func (r *DynamoCandidateRepository) getByCandidateID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	c := &models.Candidate{CandidateID: candidateID}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: c.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: c.GetSK()},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get candidate from DynamoDB")
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var dbCandidate models.Candidate
	if err := attributevalue.UnmarshalMap(result.Item, &dbCandidate); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal candidate from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}

	return &dbCandidate, nil
}

func (r *DynamoCandidateRepository) findByGuard(ctx context.Context, guardPK string) (*models.Candidate, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: guardPK},
			"SK": &types.AttributeValueMemberS{Value: guardSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate guard: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	idAttr, ok := result.Item["candidate_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("candidate guard %s has no candidate_id", guardPK)
	}

	return r.getByCandidateID(ctx, idAttr.Value)
}

func guardItem(pk, candidateID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: pk},
		"SK":           &types.AttributeValueMemberS{Value: guardSK},
		"candidate_id": &types.AttributeValueMemberS{Value: candidateID},
	}
}
