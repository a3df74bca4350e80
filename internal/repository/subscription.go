package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"pantry-assistant/internal/domain"
)

// Entitlement reads the subscription of identityID. A missing or lapsed
// subscription is the free tier.
func (c *Client) Entitlement(ctx context.Context, identityID string) (domain.Entitlement, error) {
	free := domain.Entitlement{Tier: domain.TierFree}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(userPK(identityID), skSubscription),
	})
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("repository: Entitlement get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return free, nil
	}

	tier, err := strAttr(out.Item, "tier")
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("repository: Entitlement decode: %w", err)
	}
	active, _ := boolAttr(out.Item, "active")
	expires, _ := timeAttr(out.Item, "expiresAt")

	if !active || (!expires.IsZero() && c.now().After(expires)) {
		free.ExpiresAt = expires
		return free, nil
	}
	return domain.Entitlement{IsActive: true, Tier: domain.Tier(tier), ExpiresAt: expires}, nil
}
