package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pantry-assistant/internal/domain"
)

// PutProduct stores a new inventory item. The product must not exist yet.
func (c *Client) PutProduct(ctx context.Context, ownerID string, p domain.Product) error {
	if ownerID == "" || p.ID == "" {
		return errors.New("repository: PutProduct: owner and product id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                productItem(ownerID, p),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutProduct: %w", err)
	}
	return nil
}

// ListProducts returns every inventory item of ownerID in key order.
func (c *Client) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(ownerID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixProd},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListProducts query: %w", err)
	}
	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		p, err := itemToProduct(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListProducts unmarshal: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

// RemoveProduct deletes the product and records the removal in one
// transaction. ErrNotFound is returned when the product is already gone.
func (c *Client) RemoveProduct(ctx context.Context, ownerID string, rec domain.RemovalRecord) error {
	if ownerID == "" || rec.ProductID == "" {
		return errors.New("repository: RemoveProduct: owner and product id are required")
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:           aws.String(c.tableName),
					Key:                 key(userPK(ownerID), productSK(rec.ProductID)),
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      historyItem(ownerID, rec),
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: RemoveProduct: %w", err)
	}
	return nil
}

// ListRemovals returns removal history recorded at or after since,
// oldest first.
func (c *Client) ListRemovals(ctx context.Context, ownerID string, since time.Time) ([]domain.RemovalRecord, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: userPK(ownerID)},
			":from": &types.AttributeValueMemberS{Value: skPrefixHist + since.UTC().Format(time.RFC3339Nano)},
			":to":   &types.AttributeValueMemberS{Value: skPrefixHist + "~"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListRemovals query: %w", err)
	}
	out := make([]domain.RemovalRecord, 0, len(items))
	for _, item := range items {
		rec, err := itemToRemoval(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRemovals unmarshal: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func productItem(ownerID string, p domain.Product) map[string]types.AttributeValue {
	item := key(userPK(ownerID), productSK(p.ID))
	item["productId"] = &types.AttributeValueMemberS{Value: p.ID}
	item["name"] = &types.AttributeValueMemberS{Value: p.Name}
	item["quantity"] = floatValue(p.Quantity)
	item["unit"] = &types.AttributeValueMemberS{Value: p.Unit}
	item["expiresAt"] = timeValue(p.ExpiresAt)
	item["addedAt"] = timeValue(p.AddedAt)
	return item
}

func itemToProduct(item map[string]types.AttributeValue) (domain.Product, error) {
	id, err := strAttr(item, "productId")
	if err != nil {
		return domain.Product{}, err
	}
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Product{}, err
	}
	expires, err := timeAttr(item, "expiresAt")
	if err != nil {
		return domain.Product{}, err
	}
	added, _ := timeAttr(item, "addedAt")
	qty, _ := floatAttr(item, "quantity")
	unit, _ := strAttr(item, "unit")
	return domain.Product{
		ID:        id,
		Name:      name,
		Quantity:  qty,
		Unit:      unit,
		ExpiresAt: expires,
		AddedAt:   added,
	}, nil
}

func historyItem(ownerID string, rec domain.RemovalRecord) map[string]types.AttributeValue {
	item := key(userPK(ownerID), histSK(rec.RemovedAt, rec.ProductID))
	item["productId"] = &types.AttributeValueMemberS{Value: rec.ProductID}
	item["name"] = &types.AttributeValueMemberS{Value: rec.Name}
	item["addedAt"] = timeValue(rec.AddedAt)
	item["expiresAt"] = timeValue(rec.ExpiresAt)
	item["removedAt"] = timeValue(rec.RemovedAt)
	item["wasted"] = &types.AttributeValueMemberBOOL{Value: rec.Wasted}
	item["ttl"] = numValue(rec.RemovedAt.Add(historyTTL).Unix())
	return item
}

func itemToRemoval(item map[string]types.AttributeValue) (domain.RemovalRecord, error) {
	id, err := strAttr(item, "productId")
	if err != nil {
		return domain.RemovalRecord{}, err
	}
	removed, err := timeAttr(item, "removedAt")
	if err != nil {
		return domain.RemovalRecord{}, err
	}
	name, _ := strAttr(item, "name")
	added, _ := timeAttr(item, "addedAt")
	expires, _ := timeAttr(item, "expiresAt")
	wasted, _ := boolAttr(item, "wasted")
	return domain.RemovalRecord{
		ProductID: id,
		Name:      name,
		AddedAt:   added,
		ExpiresAt: expires,
		RemovedAt: removed,
		Wasted:    wasted,
	}, nil
}
