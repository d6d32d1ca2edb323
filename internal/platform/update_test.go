package platform

import (
	"errors"
	"testing"

	"github.com/capitalize-ai/persona-relay/internal/model"
)

func TestParseUpdateBasicMessage(t *testing.T) {
	raw := `{
		"update_id": 7,
		"message": {
			"message_id": 20,
			"chat": {"id": -100123, "type": "supergroup", "title": "den"},
			"from": {"id": 5, "is_bot": false, "first_name": "Ann", "last_name": "Lee"},
			"text": "hello everyone",
			"message_thread_id": 3
		}
	}`
	u, err := ParseUpdate([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.ChatID != -100123 || u.ChatType != model.ChatSupergroup {
		t.Errorf("chat fields: %+v", u)
	}
	if u.MessageID != 20 || u.ThreadID != 3 {
		t.Errorf("message fields: %+v", u)
	}
	if u.From.Name != "Ann Lee" || u.From.IsBot {
		t.Errorf("from fields: %+v", u.From)
	}
	if u.Text != "hello everyone" {
		t.Errorf("text: %q", u.Text)
	}
}

func TestParseUpdateChannelCommentReply(t *testing.T) {
	raw := `{
		"update_id": 8,
		"message": {
			"message_id": 21,
			"chat": {"id": 1, "type": "supergroup"},
			"from": {"id": 5, "is_bot": false, "first_name": "Ann"},
			"text": "nice post",
			"reply_to_message": {
				"message_id": 10,
				"chat": {"id": 1, "type": "supergroup"},
				"text": "the post",
				"is_automatic_forward": true,
				"sender_chat": {"id": -200, "type": "channel"}
			}
		}
	}`
	u, err := ParseUpdate([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.ReplyTo == nil {
		t.Fatal("expected reply metadata")
	}
	if !u.ReplyTo.IsAutomaticForward || u.ReplyTo.SenderChatType != model.ChatChannel {
		t.Errorf("forward markers lost: %+v", u.ReplyTo)
	}
	if u.ReplyTo.MessageID != 10 || u.ReplyTo.Text != "the post" {
		t.Errorf("reply fields: %+v", u.ReplyTo)
	}
}

func TestParseUpdateCaptionFallback(t *testing.T) {
	raw := `{"update_id":9,"message":{"message_id":22,"chat":{"id":1,"type":"group"},"caption":"photo caption"}}`
	u, err := ParseUpdate([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Text != "photo caption" {
		t.Errorf("expected caption fallback, got %q", u.Text)
	}
}

func TestParseUpdateWithoutMessage(t *testing.T) {
	_, err := ParseUpdate([]byte(`{"update_id":10}`))
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("expected ErrNoMessage, got %v", err)
	}
}
