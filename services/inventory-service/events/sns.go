package events

import (
	"context"
	"fmt"

	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
)

// SNSPublisher fans ledger events out through an SNS topic. The event
// type travels as a message attribute so subscribers can filter on it.
type SNSPublisher struct {
	client   awspkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client awspkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	b, err := encode(payload)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"event_type": eventType,
		"stock_key":  key,
	}
	if err := p.client.Publish(ctx, p.topicArn, b, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (p *SNSPublisher) Close() error { return nil }
