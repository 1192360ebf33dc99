package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is a single-table stand-in for DynamoDB. It understands the
// handful of expressions the repositories send.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

// reservedWords is the slice of DynamoDB's reserved word list that collides
// with attribute names this table uses.
var reservedWords = map[string]bool{
	"consumed": true,
	"date":     true,
	"name":     true,
	"status":   true,
	"ttl":      true,
}

var expressionNameRe = regexp.MustCompile(`[#:]?[A-Za-z_][A-Za-z0-9_]*`)

// checkReserved fails the way DynamoDB does when an expression names a
// reserved attribute without a #placeholder.
func checkReserved(exprs ...*string) error {
	for _, expr := range exprs {
		for _, tok := range expressionNameRe.FindAllString(aws.ToString(expr), -1) {
			if reservedWords[strings.ToLower(tok)] {
				return fmt.Errorf("ValidationException: Invalid expression: Attribute name is a reserved keyword; reserved keyword: %s", tok)
			}
		}
	}
	return nil
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	return attrString(item["PK"]) + "|" + attrString(item["SK"])
}

func attrString(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrBool(v types.AttributeValue) bool {
	if b, ok := v.(*types.AttributeValueMemberBOOL); ok {
		return b.Value
	}
	return false
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[itemKey(params.Item)] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	cancelled := false
	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if ti.Put == nil || aws.ToString(ti.Put.ConditionExpression) != "attribute_not_exists(PK)" {
			continue
		}
		if _, exists := f.items[itemKey(ti.Put.Item)]; exists {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range params.TransactItems {
		if ti.Put != nil {
			f.items[itemKey(ti.Put.Item)] = copyItem(ti.Put.Item)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	if err := checkReserved(params.UpdateExpression, params.ConditionExpression); err != nil {
		return nil, err
	}

	key := itemKey(params.Key)
	item, exists := f.items[key]
	values := params.ExpressionAttributeValues
	failed := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}

	switch cond := aws.ToString(params.ConditionExpression); {
	case cond == "attribute_exists(PK)":
		if !exists {
			return nil, failed
		}
	case strings.Contains(cond, "id = :id"):
		if !exists || attrString(item["id"]) != attrString(values[":id"]) || attrBool(item["consumed"]) != attrBool(values[":unconsumed"]) {
			return nil, failed
		}
	}

	updated := copyItem(item)
	assignments := strings.TrimPrefix(aws.ToString(params.UpdateExpression), "SET ")
	for _, a := range strings.Split(assignments, ",") {
		parts := strings.SplitN(strings.TrimSpace(a), " = ", 2)
		name := parts[0]
		if resolved, ok := params.ExpressionAttributeNames[name]; ok {
			name = resolved
		}
		updated[name] = values[parts[1]]
	}
	f.items[key] = updated

	return &dynamodb.UpdateItemOutput{Attributes: copyItem(updated)}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	if err := checkReserved(params.FilterExpression); err != nil {
		return nil, err
	}

	values := params.ExpressionAttributeValues
	var items []map[string]types.AttributeValue
	for _, item := range f.items {
		if v, ok := values[":entity"]; ok && attrString(item["entity_type"]) != attrString(v) {
			continue
		}
		if v, ok := values[":status"]; ok && attrString(item["status"]) != attrString(v) {
			continue
		}
		items = append(items, copyItem(item))
	}
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items))}, nil
}
