package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/campus-identity/internal/domain"
)

// DirectoryRepo maps login IDs to accounts.
// PK: login_id.
type DirectoryRepo struct {
	client    API
	tableName string
}

func NewDirectoryRepo(client API, tableName string) *DirectoryRepo {
	return &DirectoryRepo{client: client, tableName: tableName}
}

// Claim registers a login ID. A login ID that is already taken is a conflict.
func (r *DirectoryRepo) Claim(ctx context.Context, e *domain.DirectoryEntry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal directory entry: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldLoginID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("login id %s already registered: %w", e.LoginID, domain.ErrConflict)
	}
	return err
}

func (r *DirectoryRepo) Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldLoginID, loginID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("login id not found: %w", domain.ErrNotFound)
	}
	var e domain.DirectoryEntry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Release removes a login ID. Used to undo a claim when signup fails afterwards.
func (r *DirectoryRepo) Release(ctx context.Context, loginID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldLoginID, loginID),
	})
	return err
}
