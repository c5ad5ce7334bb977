package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoLedger is the idempotency ledger on DynamoDB, for deployments
// without PostgreSQL in the webhook path. A conditional PutItem on the
// partition key gives the same atomic insert-if-absent as the
// relational primary key.
type DynamoLedger struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoNotification represents the DynamoDB item structure
type dynamoNotification struct {
	ID          string `dynamodbav:"id"`
	ProcessedAt string `dynamodbav:"processed_at"`
}

func NewDynamoLedger(client *dynamodb.Client, tableName string) *DynamoLedger {
	return &DynamoLedger{client: client, tableName: tableName}
}

// NewDynamoClient builds a DynamoDB client from ambient AWS config.
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (l *DynamoLedger) Seen(ctx context.Context, notificationID string) (bool, error) {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: notificationID},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return len(result.Item) > 0, nil
}

func (l *DynamoLedger) Record(ctx context.Context, notificationID string) error {
	item := dynamoNotification{
		ID:          notificationID,
		ProcessedAt: time.Now().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			// A concurrent handler recorded it first.
			return nil
		}
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
