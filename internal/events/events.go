// Package events publishes domain events after successful writes.
package events

import (
	"context"
	"sync"
	"time"
)

// Source is the EventBridge source of every event emitted by the backend.
const Source = "strivesync.backend"

// Event types.
const (
	TypeUserCreated     = "UserCreated"
	TypeHabitCreated    = "HabitCreated"
	TypeHabitUpdated    = "HabitUpdated"
	TypeHabitDeleted    = "HabitDeleted"
	TypeActivityCreated = "ActivityCreated"
	TypeActivityUpdated = "ActivityUpdated"
	TypeActivityDeleted = "ActivityDeleted"
	TypeActivityJoined  = "ActivityJoined"
	TypeActivityLeft    = "ActivityLeft"
)

// Event is a fact about a stored entity.
type Event struct {
	Type        string         `json:"eventType"`
	AggregateID string         `json:"aggregateId"`
	UserID      string         `json:"userId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Data        map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with now.
func New(eventType, aggregateID, userID string, now time.Time, data map[string]any) Event {
	return Event{
		Type:        eventType,
		AggregateID: aggregateID,
		UserID:      userID,
		OccurredAt:  now.UTC(),
		Data:        data,
	}
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// SetError makes every later Publish fail with err.
func (p *MemoryPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MemoryPublisher) Publish(_ context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the type of every published event in order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
