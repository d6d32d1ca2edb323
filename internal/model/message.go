// Package model defines data structures for the persona relay.
package model

import (
	"encoding/json"
)

// Role represents the role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one unit of conversation history. Message IDs are assigned
// by the messaging platform and are strictly increasing per chat; they
// are the only addressing key for thread reconstruction.
type Message struct {
	ChatID    int64  `json:"chat_id,omitempty"`
	ThreadID  int64  `json:"thread_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	AuthorID  int64  `json:"author_id,omitempty"`
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	Content   string `json:"content"`
	ReplyTo   int64  `json:"reply_to,omitempty"`
}

// HistoryEntry is the serialized form of a message inside the history
// store: role and name metadata plus the reply pointer, without the
// addressing fields already encoded in the key.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	ReplyTo int64  `json:"reply_to,omitempty"`
}

// EncodeHistoryEntry serializes an entry for storage.
func EncodeHistoryEntry(e HistoryEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeHistoryEntry parses a stored entry. Entries written by the
// legacy format are plain strings without role or name metadata; those
// decode as a user-authored entry whose content is the raw string.
func DecodeHistoryEntry(raw string) HistoryEntry {
	var e HistoryEntry
	if err := json.Unmarshal([]byte(raw), &e); err == nil && e.Content != "" {
		return e
	}
	var legacy string
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil {
		return HistoryEntry{Role: RoleUser, Content: legacy}
	}
	return HistoryEntry{Role: RoleUser, Content: raw}
}
