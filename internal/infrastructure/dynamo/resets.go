package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/campus-identity/internal/domain"
)

// ResetSessionRepo stores reset sessions with conditional writes so that
// attempt counting and consumption are atomic per item.
// PK: session_ref. TTL: purge_at.
type ResetSessionRepo struct {
	client    API
	tableName string
}

func NewResetSessionRepo(client API, tableName string) *ResetSessionRepo {
	return &ResetSessionRepo{client: client, tableName: tableName}
}

func (r *ResetSessionRepo) Create(ctx context.Context, s *domain.ResetSession) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal reset session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldSessionRef},
	})
	if isConditionFailed(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *ResetSessionRepo) Get(ctx context.Context, ref string) (*domain.ResetSession, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSessionRef, ref),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var s domain.ResetSession
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementAttempts uses a conditional ADD, so the limit check and the
// increment are one write. On a failed condition the old image tells a
// missing session apart from an exhausted one.
func (r *ResetSessionRepo) IncrementAttempts(ctx context.Context, ref string, max int) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldSessionRef, ref),
		UpdateExpression:    aws.String("ADD #n :one"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND #n < :max"),
		ExpressionAttributeNames: map[string]string{
			"#n":  fieldAttempts,
			"#pk": fieldSessionRef,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
		},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return 0, domain.ErrNotFound
		}
		return max, domain.ErrLockedOut
	}
	if err != nil {
		return 0, err
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attempts missing from update result")
	}
	return strconv.Atoi(n.Value)
}

// Take deletes the item and returns its last state. DynamoDB serialises
// deletes on one key, so only one caller sees the old image.
func (r *ResetSessionRepo) Take(ctx context.Context, ref string) (*domain.ResetSession, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldSessionRef, ref),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldSessionRef},
		ReturnValues:             types.ReturnValueAllOld,
	})
	if isConditionFailed(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s domain.ResetSession
	if err := attributevalue.UnmarshalMap(out.Attributes, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ResetSessionRepo) Delete(ctx context.Context, ref string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldSessionRef, ref),
	})
	return err
}
