package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const rateWindow = time.Minute

// RateLimiter is a fixed one-minute window per channel address. Counters
// live in DynamoDB so every Lambda instance shares them.
type RateLimiter struct {
	client *Client
	limit  int
}

// NewRateLimiter allows up to limit inbound messages per address per minute.
func NewRateLimiter(c *Client, limit int) (*RateLimiter, error) {
	if c == nil {
		return nil, errors.New("repository: client must not be nil")
	}
	if limit <= 0 {
		return nil, errors.New("repository: rate limit must be positive")
	}
	return &RateLimiter{client: c, limit: limit}, nil
}

// Allow counts one message from channelAddress and reports whether it is
// within budget.
func (r *RateLimiter) Allow(ctx context.Context, channelAddress string) (bool, error) {
	now := r.client.now().UTC()
	start := now.Truncate(rateWindow)

	out, err := r.client.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.client.tableName),
		Key:              key(ratePK(channelAddress), skPrefixWindow+strconv.FormatInt(start.Unix(), 10)),
		UpdateExpression: aws.String("ADD #count :one SET #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numValue(1),
			":ttl": numValue(start.Add(2 * rateWindow).Unix()),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return false, fmt.Errorf("repository: RateLimiter.Allow: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return true, nil
	}
	count, err := intAttr(out.Attributes, "count")
	if err != nil {
		return false, fmt.Errorf("repository: RateLimiter.Allow decode count: %w", err)
	}
	return count <= r.limit, nil
}
