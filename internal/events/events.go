// Package events implements a best-effort lifecycle event bus over NATS
// JetStream. A Bus constructed with no URL is inactive: every Publish
// and Subscribe call becomes a silent no-op, so callers never need to
// branch on whether NATS is configured.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType names one lifecycle event a session or the tape store
// can emit.
type EventType string

const (
	// Session lifecycle.
	EventSessionStarted EventType = "session.started"
	EventSessionClosed  EventType = "session.closed"

	// Tape activity.
	EventTapeMiss     EventType = "tape.miss"
	EventTapeRecorded EventType = "tape.recorded"
	EventTapeMatched  EventType = "tape.matched"
)

// Event is the envelope published on the bus.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Command   string      `json:"command,omitempty"`
	TapePath  string      `json:"tape_path,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bus publishes Events to JetStream. A Bus with no NATS URL is
// inactive and every method is a no-op.
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	subs   []*nats.Subscription
	active bool
}

// NewBus connects to natsURL and ensures the controltape streams
// exist. An empty natsURL returns an inactive bus.
func NewBus(natsURL string) (*Bus, error) {
	if natsURL == "" {
		return &Bus{active: false}, nil
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	bus := &Bus{nc: nc, js: js, active: true}
	if err := bus.createStreams(); err != nil {
		nc.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) createStreams() error {
	streams := []struct {
		name     string
		subjects []string
	}{
		{"CONTROLTAPE_SESSIONS", []string{"controltape.session.>"}},
		{"CONTROLTAPE_TAPES", []string{"controltape.tape.>"}},
	}

	for _, s := range streams {
		_, err := b.js.AddStream(&nats.StreamConfig{
			Name:      s.name,
			Subjects:  s.subjects,
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		})
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			return fmt.Errorf("failed to create stream %s: %w", s.name, err)
		}
	}
	return nil
}

// Publish sends event, stamping its Timestamp. A no-op on an inactive bus.
func (b *Bus) Publish(event Event) error {
	if !b.active {
		return nil
	}
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := b.subjectFor(event)
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *Bus) subjectFor(event Event) string {
	switch event.Type {
	case EventSessionStarted, EventSessionClosed:
		return fmt.Sprintf("controltape.session.%s.%s", event.SessionID, event.Type)
	case EventTapeMiss, EventTapeRecorded, EventTapeMatched:
		return fmt.Sprintf("controltape.tape.%s.%s", event.SessionID, event.Type)
	default:
		return fmt.Sprintf("controltape.unknown.%s", event.Type)
	}
}

// Subscribe registers handler for every event published on subject,
// returning an unsubscribe function. A no-op on an inactive bus.
func (b *Bus) Subscribe(subject string, handler func(Event)) (func(), error) {
	if !b.active {
		return func() {}, nil
	}

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	b.subs = append(b.subs, sub)
	return func() { sub.Unsubscribe() }, nil
}

// SubscribeSession subscribes to every event for one session.
func (b *Bus) SubscribeSession(sessionID string, handler func(Event)) (func(), error) {
	return b.Subscribe(fmt.Sprintf("controltape.*.%s.>", sessionID), handler)
}

// Close unsubscribes every active subscription and closes the
// underlying NATS connection. A no-op on an inactive bus.
func (b *Bus) Close() error {
	if !b.active {
		return nil
	}
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.nc.Close()
	return nil
}

// IsActive reports whether this bus is backed by a live NATS connection.
func (b *Bus) IsActive() bool {
	return b.active
}
