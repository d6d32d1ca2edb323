// Package store implements the shared conversation state on Redis.
// All mutation happens through atomic per-key commands so that multiple
// persona processes can run against the same backing store without
// in-process locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/persona-relay/internal/model"
)

const (
	// historyCap bounds the per-chat recency list.
	historyCap = 100

	// messageKeyTTL bounds the keyed reply-chain entries. A thread walk
	// crossing an expired entry stops gracefully, same as a trimmed list.
	messageKeyTTL = 24 * time.Hour

	// maxThreadDepth guards the reply walk against pointer cycles.
	maxThreadDepth = 100
)

func historyKey(chatID int64) string {
	return fmt.Sprintf("chat:%d:history", chatID)
}

func messageKey(chatID, messageID int64) string {
	return fmt.Sprintf("chat:%d:msg:%d", chatID, messageID)
}

// HistoryStore is the durable per-chat message log. Appends go to a
// length-capped recency list and to a keyed entry used only for
// reply-chain reconstruction.
type HistoryStore struct {
	rdb redis.UniversalClient
}

// NewHistoryStore creates a history store on the given Redis client.
func NewHistoryStore(rdb redis.UniversalClient) *HistoryStore {
	return &HistoryStore{rdb: rdb}
}

// Append records one message. The recency list is trimmed to the last
// 100 entries; the keyed entry expires after messageKeyTTL.
func (s *HistoryStore) Append(ctx context.Context, msg model.Message) error {
	payload, err := model.EncodeHistoryEntry(model.HistoryEntry{
		Role:    msg.Role,
		Content: msg.Content,
		Name:    msg.Name,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, historyKey(msg.ChatID), payload)
	pipe.LTrim(ctx, historyKey(msg.ChatID), -historyCap, -1)
	if msg.MessageID != 0 {
		pipe.Set(ctx, messageKey(msg.ChatID, msg.MessageID), payload, messageKeyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Recent returns the most recent limit entries for a chat in
// chronological order. The recency list is chat-wide: thread ids do not
// filter it (see DESIGN.md).
func (s *HistoryStore) Recent(ctx context.Context, chatID int64, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	raw, err := s.rdb.LRange(ctx, historyKey(chatID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	entries := make([]model.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, model.DecodeHistoryEntry(r))
	}
	return entries, nil
}

// Thread walks reply_to pointers backward from startID and returns the
// chain oldest first. A missing parent ends the walk; the partial chain
// is returned without error since it only means the store no longer
// holds the older entries.
func (s *HistoryStore) Thread(ctx context.Context, chatID, startID int64) ([]model.HistoryEntry, error) {
	var chain []model.HistoryEntry
	id := startID
	for i := 0; i < maxThreadDepth && id != 0; i++ {
		raw, err := s.rdb.Get(ctx, messageKey(chatID, id)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read thread entry: %w", err)
		}
		entry := model.DecodeHistoryEntry(raw)
		chain = append(chain, entry)
		id = entry.ReplyTo
	}
	// Reverse to chronological order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Root walks the reply chain upward from startID and returns the id of
// the first ancestor with no recorded parent. When nothing is recorded
// for startID the walk returns startID itself.
func (s *HistoryStore) Root(ctx context.Context, chatID, startID int64) int64 {
	id := startID
	for i := 0; i < maxThreadDepth; i++ {
		raw, err := s.rdb.Get(ctx, messageKey(chatID, id)).Result()
		if err != nil {
			return id
		}
		entry := model.DecodeHistoryEntry(raw)
		if entry.ReplyTo == 0 {
			return id
		}
		id = entry.ReplyTo
	}
	return id
}
