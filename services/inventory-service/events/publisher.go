package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher delivers ledger events to downstream consumers. key groups
// events that must stay ordered relative to each other (one stock pair).
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
	Close() error
}

func encode(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
