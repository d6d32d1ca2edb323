// Package platform wraps the messaging platform's send/receive
// primitives. Everything here is a thin I/O shim: errors are reported
// to callers who log and continue, never crash.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SendRequest describes one outbound text message.
type SendRequest struct {
	ChatID   int64  `json:"chat_id"`
	ThreadID int64  `json:"message_thread_id,omitempty"`
	ReplyTo  int64  `json:"reply_to_message_id,omitempty"`
	Text     string `json:"text"`
}

// Sender is the outbound platform surface the relay uses.
type Sender interface {
	// SendMessage sends text and returns the platform-assigned id of
	// the new message.
	SendMessage(ctx context.Context, req SendRequest) (int64, error)

	// SendTyping shows a typing indicator in the chat.
	SendTyping(ctx context.Context, chatID int64) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Client is an HTTP bot-API implementation of Sender.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a platform client. baseURL already includes the
// bot credential path segment.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("%s rejected: %s", method, out.Description)
	}
	return &out, nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (int64, error) {
	resp, err := c.call(ctx, "sendMessage", req)
	if err != nil {
		return 0, err
	}
	return resp.Result.MessageID, nil
}

// SendTyping shows the typing indicator.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	_, err := c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}
