package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pantry-assistant/internal/domain"
)

// ResolveIdentity returns the identity bound to channelAddress, creating it on
// first contact. Creation writes the address lookup and the profile in one
// transaction; a concurrent creator losing the race re-reads the winner.
func (c *Client) ResolveIdentity(ctx context.Context, channelAddress string) (domain.Identity, error) {
	address := strings.TrimSpace(channelAddress)
	if address == "" {
		return domain.Identity{}, errors.New("repository: ResolveIdentity: channel address is required")
	}

	ident, err := c.lookupIdentity(ctx, address)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Identity{}, fmt.Errorf("repository: ResolveIdentity: %w", err)
	}

	ident = domain.Identity{
		ID:             newID(),
		ChannelAddress: address,
		CreatedAt:      c.now().UTC(),
	}
	ident.LastActivity = ident.CreatedAt

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                addressItem(ident),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                profileItem(ident),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err == nil {
		return ident, nil
	}
	if !isConditionFailure(err) {
		return domain.Identity{}, fmt.Errorf("repository: ResolveIdentity create: %w", err)
	}

	winner, lookupErr := c.lookupIdentity(ctx, address)
	if lookupErr != nil {
		return domain.Identity{}, fmt.Errorf("repository: ResolveIdentity re-read: %w", lookupErr)
	}
	return winner, nil
}

// TouchActivity stamps the identity's last activity time.
func (c *Client) TouchActivity(ctx context.Context, identityID string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key(userPK(identityID), skProfile),
		UpdateExpression: aws.String("SET lastActivity = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": timeValue(c.now()),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: TouchActivity: %w", err)
	}
	return nil
}

func (c *Client) lookupIdentity(ctx context.Context, address string) (domain.Identity, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(addrPK(address), skIdentity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Identity{}, ErrNotFound
	}
	id, err := strAttr(out.Item, "identityId")
	if err != nil {
		return domain.Identity{}, err
	}
	created, _ := timeAttr(out.Item, "createdAt") // older items may lack it
	return domain.Identity{ID: id, ChannelAddress: address, CreatedAt: created}, nil
}

func addressItem(ident domain.Identity) map[string]types.AttributeValue {
	item := key(addrPK(ident.ChannelAddress), skIdentity)
	item["identityId"] = &types.AttributeValueMemberS{Value: ident.ID}
	item["createdAt"] = timeValue(ident.CreatedAt)
	return item
}

func profileItem(ident domain.Identity) map[string]types.AttributeValue {
	item := key(userPK(ident.ID), skProfile)
	item["identityId"] = &types.AttributeValueMemberS{Value: ident.ID}
	item["channelAddress"] = &types.AttributeValueMemberS{Value: ident.ChannelAddress}
	item["createdAt"] = timeValue(ident.CreatedAt)
	item["lastActivity"] = timeValue(ident.LastActivity)
	return item
}
