package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pantry-assistant/internal/domain"
)

// redisAPI is the subset of redis.Cmdable the store needs.
type redisAPI interface {
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisRecord struct {
	PendingAction domain.PendingAction  `json:"pendingAction"`
	Payload       domain.ContextPayload `json:"payload"`
	ExpiresAt     time.Time             `json:"expiresAt"`
}

// Redis stores contexts as JSON values whose key expiry trails expiresAt by
// a grace period, mirroring the DynamoDB TTL attribute.
type Redis struct {
	api    redisAPI
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewRedis wraps a go-redis client (or anything with the same commands).
func NewRedis(api redisAPI, prefix string, grace time.Duration) (*Redis, error) {
	if api == nil {
		return nil, errors.New("contextstore: redis client must not be nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pantry:ctx:"
	}
	return &Redis{api: api, prefix: prefix, grace: grace, now: time.Now}, nil
}

func (r *Redis) key(identityID string) string {
	return r.prefix + identityID
}

// TakeContext removes and returns the context of identityID with one GETDEL,
// so concurrent takers never both receive it.
func (r *Redis) TakeContext(ctx context.Context, identityID string) (*domain.ConversationContext, error) {
	raw, err := r.api.GetDel(ctx, r.key(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("contextstore: redis getdel: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("contextstore: decode context: %w", err)
	}
	return &domain.ConversationContext{
		OwnerID:       identityID,
		PendingAction: rec.PendingAction,
		Payload:       rec.Payload,
		ExpiresAt:     rec.ExpiresAt,
	}, nil
}

func (r *Redis) SetContext(ctx context.Context, identityID string, cc domain.ConversationContext) error {
	if identityID == "" {
		return errors.New("contextstore: identity id is required")
	}
	raw, err := json.Marshal(redisRecord{
		PendingAction: cc.PendingAction,
		Payload:       cc.Payload,
		ExpiresAt:     cc.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("contextstore: encode context: %w", err)
	}
	ttl := cc.ExpiresAt.Sub(r.now()) + r.grace
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.api.Set(ctx, r.key(identityID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("contextstore: redis set: %w", err)
	}
	return nil
}
