package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/campus-identity/internal/domain"
)

// RedemptionRepo records spent reset tokens.
// PK: token_id. TTL: purge_at.
type RedemptionRepo struct {
	client    API
	tableName string
}

func NewRedemptionRepo(client API, tableName string) *RedemptionRepo {
	return &RedemptionRepo{client: client, tableName: tableName}
}

func (r *RedemptionRepo) Redeem(ctx context.Context, tokenID, userID string, until time.Time) error {
	item, err := attributevalue.MarshalMap(&domain.Redemption{
		TokenID: tokenID,
		UserID:  userID,
		PurgeAt: until.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal redemption: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldTokenID},
	})
	if isConditionFailed(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *RedemptionRepo) Release(ctx context.Context, tokenID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldTokenID, tokenID),
	})
	return err
}
