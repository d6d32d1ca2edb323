package platform

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/persona-relay/internal/model"
)

// ErrNoMessage marks updates that carry no message payload (edits,
// member events and the like); callers skip them.
var ErrNoMessage = errors.New("update carries no message")

// wireUpdate mirrors the platform's update JSON.
type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
}

type wireMessage struct {
	MessageID int64     `json:"message_id"`
	Chat      wireChat  `json:"chat"`
	From      *wireUser `json:"from"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	ThreadID  int64     `json:"message_thread_id"`

	ReplyToMessage     *wireMessage `json:"reply_to_message"`
	SenderChat         *wireChat    `json:"sender_chat"`
	IsAutomaticForward bool         `json:"is_automatic_forward"`
}

type wireChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (u *wireUser) displayName() string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// ParseUpdate converts a raw webhook payload into the relay's update
// model.
func ParseUpdate(data []byte) (*model.Update, error) {
	var wire wireUpdate
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse update: %w", err)
	}
	if wire.Message == nil {
		return nil, ErrNoMessage
	}
	msg := wire.Message

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	u := &model.Update{
		UpdateID:  wire.UpdateID,
		ChatID:    msg.Chat.ID,
		ChatType:  model.ChatType(msg.Chat.Type),
		ChatTitle: msg.Chat.Title,
		ThreadID:  msg.ThreadID,
		MessageID: msg.MessageID,
		Text:      text,
	}
	if msg.From != nil {
		u.From = model.User{ID: msg.From.ID, IsBot: msg.From.IsBot, Name: msg.From.displayName()}
	}
	if r := msg.ReplyToMessage; r != nil {
		replied := &model.RepliedMessage{
			MessageID:          r.MessageID,
			IsAutomaticForward: r.IsAutomaticForward,
			Text:               r.Text,
		}
		if replied.Text == "" {
			replied.Text = r.Caption
		}
		if r.From != nil {
			replied.AuthorID = r.From.ID
			replied.AuthorIsBot = r.From.IsBot
		}
		if r.SenderChat != nil {
			replied.SenderChatType = model.ChatType(r.SenderChat.Type)
		}
		u.ReplyTo = replied
	}
	return u, nil
}
