package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process journal for runs without a database.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	keys   map[string]IdempotencyRecord
	events []Event
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, keys: make(map[string]IdempotencyRecord)}
}

func (m *Memory) Reserve(ctx context.Context, key, scope string) (IdempotencyRecord, bool, error) {
	if key == "" {
		return IdempotencyRecord{}, false, fmt.Errorf("journal: empty idempotency key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.keys[key]; ok {
		if prior.Scope != scope {
			return prior, true, ErrKeyScopeMismatch
		}
		return prior, true, nil
	}
	rec := IdempotencyRecord{Key: key, Scope: scope, CreatedAt: m.now()}
	m.keys[key] = rec
	return rec, false, nil
}

func (m *Memory) Bind(ctx context.Context, key, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.keys[key]
	if !ok {
		return ErrKeyNotFound
	}
	rec.ResourceID = resourceID
	if rec.BoundAt == nil {
		at := m.now()
		rec.BoundAt = &at
	}
	m.keys[key] = rec
	return nil
}

func (m *Memory) Record(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ev.ID = m.nextID
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = m.now()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Timeline(ctx context.Context, aggregateType, aggregateID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, ev := range m.events {
		if ev.AggregateType == aggregateType && ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}
