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

// WindowLimit is a cap on one accounting window. Limit 0 means unlimited and
// such windows are never stored.
type WindowLimit struct {
	Window domain.Window
	Limit  int
}

// ConsumeUsage atomically takes one unit from every limited window of class.
// When any window is already at its limit nothing is written and the first
// exhausted window is returned with ok=false.
func (c *Client) ConsumeUsage(ctx context.Context, ownerID string, class domain.ActionClass, limits []WindowLimit) (exhausted domain.Window, ok bool, err error) {
	now := c.now()
	var (
		items   []types.TransactWriteItem
		windows []domain.Window
	)
	for _, l := range limits {
		if l.Limit <= 0 {
			continue
		}
		period, end := periodOf(l.Window, now)
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           aws.String(c.tableName),
				Key:                 key(userPK(ownerID), usageSK(class, l.Window, period)),
				UpdateExpression:    aws.String("ADD #count :one SET #ttl = :ttl"),
				ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
				ExpressionAttributeNames: map[string]string{
					"#count": "count",
					"#ttl":   "ttl",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one":   numValue(1),
					":limit": numValue(int64(l.Limit)),
					":ttl":   numValue(end.Add(24 * time.Hour).Unix()),
				},
			},
		})
		windows = append(windows, l.Window)
	}
	if len(items) == 0 {
		return "", true, nil
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return "", true, nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == "ConditionalCheckFailed" && i < len(windows) {
				return windows[i], false, nil
			}
		}
	}
	return "", false, fmt.Errorf("repository: ConsumeUsage: %w", err)
}

// UsageCounts reads the current counter of every limited window of class.
func (c *Client) UsageCounts(ctx context.Context, ownerID string, class domain.ActionClass, limits []WindowLimit) ([]domain.UsageWindow, error) {
	now := c.now()
	out := make([]domain.UsageWindow, 0, len(limits))
	for _, l := range limits {
		if l.Limit <= 0 {
			continue
		}
		period, _ := periodOf(l.Window, now)
		res, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(c.tableName),
			Key:       key(userPK(ownerID), usageSK(class, l.Window, period)),
		})
		if err != nil {
			return nil, fmt.Errorf("repository: UsageCounts get item: %w", err)
		}
		used := 0
		if res != nil && len(res.Item) > 0 {
			used, err = intAttr(res.Item, "count")
			if err != nil {
				return nil, fmt.Errorf("repository: UsageCounts decode count: %w", err)
			}
		}
		out = append(out, domain.UsageWindow{Class: class, Window: l.Window, Used: used, Limit: l.Limit})
	}
	return out, nil
}

func usageSK(class domain.ActionClass, w domain.Window, period string) string {
	return skPrefixUsage + string(class) + "#" + string(w) + "#" + period
}

// periodOf returns the period key containing ts and the instant it ends.
// Periods are UTC calendar days, ISO weeks and calendar months.
func periodOf(w domain.Window, ts time.Time) (string, time.Time) {
	ts = ts.UTC()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case domain.WindowWeekly:
		year, week := ts.ISOWeek()
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		start := day.AddDate(0, 0, -offset)
		return fmt.Sprintf("%d-W%02d", year, week), start.AddDate(0, 0, 7)
	case domain.WindowMonthly:
		start := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		return ts.Format("2006-01"), start.AddDate(0, 1, 0)
	default:
		return ts.Format("2006-01-02"), day.AddDate(0, 0, 1)
	}
}
