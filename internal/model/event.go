package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent marks auto-reply payloads that cannot be acted on.
// Listeners log and drop these, they never abort the listen loop.
var ErrMalformedEvent = errors.New("malformed auto-reply event")

// AutoReplyEvent is the cross-process deferred reply payload published
// on the auto_reply channel. Delivery is at most once.
type AutoReplyEvent struct {
	ID        string `json:"id,omitempty"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id,omitempty"`
	ThreadID  int64  `json:"thread_id,omitempty"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text,omitempty"`
	Persona   string `json:"persona"`
}

// DecodeAutoReplyEvent parses and validates an auto-reply payload.
// ChatID, MessageID and Persona are required; UserID and ThreadID are
// optional and default to zero.
func DecodeAutoReplyEvent(data []byte) (*AutoReplyEvent, error) {
	var ev AutoReplyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ChatID == 0 || ev.MessageID == 0 {
		return nil, fmt.Errorf("%w: missing chat_id or message_id", ErrMalformedEvent)
	}
	if ev.Persona == "" {
		return nil, fmt.Errorf("%w: missing persona", ErrMalformedEvent)
	}
	return &ev, nil
}
