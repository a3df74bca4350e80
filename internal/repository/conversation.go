package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pantry-assistant/internal/domain"
)

// contextTTLGrace keeps the item around a little past expiresAt. DynamoDB
// purges lazily anyway; staleness is always judged against expiresAt.
const contextTTLGrace = time.Hour

// TakeContext removes the context of identityID and returns what was stored,
// or nil when nothing was. The delete is a single DeleteItem returning the
// old image, so of two concurrent callers at most one gets the context.
// Expired contexts are returned as stored; callers decide liveness.
func (c *Client) TakeContext(ctx context.Context, identityID string) (*domain.ConversationContext, error) {
	out, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(c.tableName),
		Key:          key(userPK(identityID), skContext),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("repository: TakeContext delete item: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return nil, nil
	}
	cc, err := itemToContext(identityID, out.Attributes)
	if err != nil {
		return nil, fmt.Errorf("repository: TakeContext decode: %w", err)
	}
	return cc, nil
}

// SetContext stores cc as the only context of identityID, replacing any
// previous one.
func (c *Client) SetContext(ctx context.Context, identityID string, cc domain.ConversationContext) error {
	if identityID == "" {
		return errors.New("repository: SetContext: identity id is required")
	}
	payload, err := json.Marshal(cc.Payload)
	if err != nil {
		return fmt.Errorf("repository: SetContext marshal payload: %w", err)
	}
	item := key(userPK(identityID), skContext)
	item["pendingAction"] = &types.AttributeValueMemberS{Value: string(cc.PendingAction)}
	item["payload"] = &types.AttributeValueMemberS{Value: string(payload)}
	item["expiresAt"] = timeValue(cc.ExpiresAt)
	item["ttl"] = numValue(cc.ExpiresAt.Add(contextTTLGrace).Unix())

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SetContext: %w", err)
	}
	return nil
}

func itemToContext(identityID string, item map[string]types.AttributeValue) (*domain.ConversationContext, error) {
	action, err := strAttr(item, "pendingAction")
	if err != nil {
		return nil, err
	}
	expires, err := timeAttr(item, "expiresAt")
	if err != nil {
		return nil, err
	}
	cc := &domain.ConversationContext{
		OwnerID:       identityID,
		PendingAction: domain.PendingAction(action),
		ExpiresAt:     expires,
	}
	if raw, _ := strAttr(item, "payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cc.Payload); err != nil {
			return nil, fmt.Errorf("repository: payload: %w", err)
		}
	}
	return cc, nil
}
