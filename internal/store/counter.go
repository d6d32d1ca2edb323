package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// fireThreshold is the number of qualifying messages per chat that
	// produces one trigger fire.
	fireThreshold = 10

	// dedupeTTL is how long a message id blocks repeat counting. Covers
	// multiple handler instances observing the same update.
	dedupeTTL = 60 * time.Second
)

func counterKey(chatID int64) string {
	return fmt.Sprintf("chat:%d:count", chatID)
}

func dedupeKey(chatID, messageID int64) string {
	return fmt.Sprintf("chat:%d:seen:%d", chatID, messageID)
}

// bumpScript increments and conditionally resets in one atomic step so
// two processes racing at the threshold cannot both fire.
var bumpScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n >= tonumber(ARGV[1]) then
	redis.call("SET", KEYS[1], 0)
	return 1
end
return 0`)

// TriggerCounter counts qualifying messages per chat and fires once per
// threshold. A first-writer-wins guard keyed by message id keeps a
// message from incrementing the counter twice.
type TriggerCounter struct {
	rdb redis.UniversalClient
}

// NewTriggerCounter creates a counter on the given Redis client.
func NewTriggerCounter(rdb redis.UniversalClient) *TriggerCounter {
	return &TriggerCounter{rdb: rdb}
}

// Bump increments the chat counter for messageID and reports whether
// the threshold was reached. On fire the counter resets to zero. A
// duplicate message id within the guard window never counts twice.
func (c *TriggerCounter) Bump(ctx context.Context, chatID, messageID int64) (bool, error) {
	fresh, err := c.rdb.SetNX(ctx, dedupeKey(chatID, messageID), 1, dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe guard: %w", err)
	}
	if !fresh {
		return false, nil
	}

	fired, err := bumpScript.Run(ctx, c.rdb, []string{counterKey(chatID)}, fireThreshold).Int()
	if err != nil {
		return false, fmt.Errorf("increment counter: %w", err)
	}
	return fired == 1, nil
}
