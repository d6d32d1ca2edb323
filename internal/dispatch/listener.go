package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/responder"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

// Responder executes a response request.
type Responder interface {
	Respond(ctx context.Context, req responder.Request) error
}

// Listener consumes auto-reply events addressed to its persona.
type Listener struct {
	persona persona.Name
	resp    Responder
	delay   responder.DelayRange
	log     *logger.Logger

	// async, when true, runs each accepted event on its own goroutine
	// so the long pre-reply delay does not block the bus callback.
	async bool
}

// NewListener creates a listener for one persona process. delay is the
// randomized wait before the deferred reply goes out.
func NewListener(p persona.Name, resp Responder, delay responder.DelayRange, log *logger.Logger) *Listener {
	if delay.Min == 0 && delay.Max == 0 {
		delay = responder.DelayRange{Min: 60 * time.Second, Max: 180 * time.Second}
	}
	return &Listener{persona: p, resp: resp, delay: delay, log: log, async: true}
}

// Handle processes one raw bus payload. Malformed payloads and events
// addressed to other personas are dropped; the listen loop never stops.
func (l *Listener) Handle(data []byte) {
	ev, err := model.DecodeAutoReplyEvent(data)
	if err != nil {
		l.log.Warn("dropping auto-reply event", zap.Error(err))
		metrics.AutoReplyEvents.WithLabelValues("in", "malformed").Inc()
		return
	}
	if persona.Name(ev.Persona) != l.persona {
		metrics.AutoReplyEvents.WithLabelValues("in", "other_persona").Inc()
		return
	}

	l.log.Info("auto-reply event accepted",
		zap.String("event_id", ev.ID),
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("message_id", ev.MessageID),
	)
	metrics.AutoReplyEvents.WithLabelValues("in", "accepted").Inc()

	if l.async {
		go l.run(ev)
	} else {
		l.run(ev)
	}
}

func (l *Listener) run(ev *model.AutoReplyEvent) {
	err := l.resp.Respond(context.Background(), responder.Request{
		ChatID:       ev.ChatID,
		ThreadID:     ev.ThreadID,
		UserID:       ev.UserID,
		Persona:      persona.Name(ev.Persona),
		PriorityText: ev.Text,
		ReplyTo:      ev.MessageID,
		Delay:        l.delay,
	})
	if err != nil {
		l.log.Error("deferred reply failed",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}
