package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/requestid"
	"github.com/austindbirch/prestus_bff/internal/tracing"
)

// Producer is satisfied by *nsq.Producer
type Producer interface {
	Publish(topic string, body []byte) error
}

// Publisher emits workflow events to a topic. A nil *Publisher discards events.
type Publisher struct {
	prod   Producer
	topic  string
	logger *logging.Logger
}

func NewPublisher(prod Producer, topic string, logger *logging.Logger) *Publisher {
	return &Publisher{prod: prod, topic: topic, logger: logger}
}

// PublishWorkflow serializes ev with the caller's trace context and publishes it
func (p *Publisher) PublishWorkflow(ctx context.Context, ev WorkflowEvent) error {
	if p == nil || p.prod == nil {
		return nil
	}
	if ev.RequestID == "" {
		ev.RequestID = requestid.FromContext(ctx)
	}
	ev.TraceHeaders = tracing.PropagateTraceToNSQ(ctx)

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal workflow event: %w", err)
	}
	if err := p.prod.Publish(p.topic, b); err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}

	tracing.AddSpanEvent(ctx, "nsq.published_workflow")
	p.logger.WithContext(ctx).WithWorkflow(ev.WorkflowID).WithBooking(ev.BookingID).
		WithField("topic", p.topic).
		WithField("state", ev.State).
		Debug("workflow event published")
	return nil
}
