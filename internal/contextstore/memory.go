// Package contextstore holds ConversationContext stores that share the
// DynamoDB store's semantics: one context per identity, replaced on set,
// removed atomically on take (possibly expired), purged lazily.
package contextstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"pantry-assistant/internal/domain"
)

// Memory keeps contexts in process memory. Suitable for local runs and tests.
type Memory struct {
	mu        sync.Mutex
	items     map[string]domain.ConversationContext
	grace     time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemory returns an empty store. Items older than expiresAt+grace are
// dropped by the next SetContext that runs at least grace after the last
// sweep.
func NewMemory(grace time.Duration) *Memory {
	return &Memory{
		items: make(map[string]domain.ConversationContext),
		grace: grace,
		now:   time.Now,
	}
}

// TakeContext removes and returns the context of identityID, or nil.
func (m *Memory) TakeContext(_ context.Context, identityID string) (*domain.ConversationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc, ok := m.items[identityID]
	if !ok {
		return nil, nil
	}
	delete(m.items, identityID)
	cc.Payload = clonePayload(cc.Payload)
	return &cc, nil
}

func (m *Memory) SetContext(_ context.Context, identityID string, cc domain.ConversationContext) error {
	if identityID == "" {
		return errors.New("contextstore: identity id is required")
	}
	cc.OwnerID = identityID
	cc.Payload = clonePayload(cc.Payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	if now := m.now(); now.Sub(m.lastSweep) >= m.grace {
		m.sweepLocked(now)
		m.lastSweep = now
	}
	m.items[identityID] = cc
	return nil
}

// sweepLocked drops contexts past their grace period. m.mu must be held.
func (m *Memory) sweepLocked(now time.Time) {
	cutoff := now.Add(-m.grace)
	for id, cc := range m.items {
		if cc.ExpiresAt.Before(cutoff) {
			delete(m.items, id)
		}
	}
}

// clonePayload copies the slices so a stored candidate list cannot be
// mutated through a returned context.
func clonePayload(p domain.ContextPayload) domain.ContextPayload {
	if p.Candidates != nil {
		p.Candidates = append([]domain.Candidate(nil), p.Candidates...)
	}
	if p.Products != nil {
		p.Products = append([]domain.Product(nil), p.Products...)
	}
	return p
}
