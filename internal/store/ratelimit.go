package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultCooldown is the per-user window between fired responses.
const defaultCooldown = 60 * time.Second

// RateLimiter gates response generation per user. The check is a single
// conditional write (SET NX EX) so concurrent checks for one user can
// never both pass.
type RateLimiter struct {
	rdb      redis.UniversalClient
	users    *UserDirectory
	cooldown time.Duration
}

// NewRateLimiter creates a limiter with the standard 60 second window.
func NewRateLimiter(rdb redis.UniversalClient, users *UserDirectory) *RateLimiter {
	return &RateLimiter{rdb: rdb, users: users, cooldown: defaultCooldown}
}

func rateKey(userID int64) string {
	return fmt.Sprintf("ratelimit:%d", userID)
}

// Check returns whether the user may fire now and, if not, how many
// seconds remain. Admin and allow-listed users always pass.
func (l *RateLimiter) Check(ctx context.Context, userID int64) (bool, int, error) {
	exempt, err := l.users.IsExempt(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	if exempt {
		return true, 0, nil
	}

	ok, err := l.rdb.SetNX(ctx, rateKey(userID), time.Now().Unix(), l.cooldown).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit write: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, rateKey(userID)).Result()
	if err != nil || ttl < 0 {
		return false, int(l.cooldown.Seconds()), nil
	}
	return false, int(math.Ceil(ttl.Seconds())), nil
}
