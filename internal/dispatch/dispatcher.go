// Package dispatch moves auto-reply events between persona processes
// over the shared message bus.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

// Subject is the bus subject auto-reply events travel on.
const Subject = "auto_reply"

// Bus is the publish side of the message bus.
type Bus interface {
	Publish(subject string, data []byte) error
}

// Publisher emits auto-reply events.
type Publisher struct {
	bus Bus
	log *logger.Logger
}

// NewPublisher creates a publisher on the given bus.
func NewPublisher(bus Bus, log *logger.Logger) *Publisher {
	return &Publisher{bus: bus, log: log}
}

// Publish assigns the event an id and puts it on the bus. Delivery is
// at most once: no store, no ack, no retry.
func (p *Publisher) Publish(ctx context.Context, ev *model.AutoReplyEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode auto-reply event: %w", err)
	}
	if err := p.bus.Publish(Subject, data); err != nil {
		metrics.AutoReplyEvents.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("publish auto-reply event: %w", err)
	}
	p.log.Info("auto-reply event published",
		zap.String("event_id", ev.ID),
		zap.Int64("chat_id", ev.ChatID),
		zap.String("persona", ev.Persona),
	)
	metrics.AutoReplyEvents.WithLabelValues("out", "published").Inc()
	return nil
}
