// Package events defines the envelope used to fan queue changes out to
// WebSocket clients, Redis subscribers and patient devices.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Topics used by the queue service.
const (
	TopicQueue         = "queue"
	TopicNotifications = "notifications"
)

// Event is a single change notification.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	EntryID   string          `json:"entry_id,omitempty"`
	PatientID string          `json:"patient_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event and marshals data into it.
func NewEvent(topic, eventType string, data interface{}) (Event, error) {
	e := Event{
		Type:      eventType,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		e.Data = raw
	}
	return e, nil
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Multi publishes to every sink and joins their errors. A failing sink does
// not stop delivery to the others.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
