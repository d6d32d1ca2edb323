package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	allowedUsersKey = "users:allowed"
	bannedUsersKey  = "users:banned"
)

// UserDirectory holds the allow and ban sets shared by every persona
// process. The admin id is configuration, not stored.
type UserDirectory struct {
	rdb     redis.UniversalClient
	adminID int64
}

// NewUserDirectory creates a directory with the given admin id.
func NewUserDirectory(rdb redis.UniversalClient, adminID int64) *UserDirectory {
	return &UserDirectory{rdb: rdb, adminID: adminID}
}

func member(userID int64) string { return strconv.FormatInt(userID, 10) }

// IsExempt reports whether the user bypasses the rate-limit cooldown:
// the admin and allow-listed users always do.
func (d *UserDirectory) IsExempt(ctx context.Context, userID int64) (bool, error) {
	if userID != 0 && userID == d.adminID {
		return true, nil
	}
	ok, err := d.rdb.SIsMember(ctx, allowedUsersKey, member(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check allow list: %w", err)
	}
	return ok, nil
}

// Allow adds a user to the allow list.
func (d *UserDirectory) Allow(ctx context.Context, userID int64) error {
	return d.rdb.SAdd(ctx, allowedUsersKey, member(userID)).Err()
}

// Disallow removes a user from the allow list.
func (d *UserDirectory) Disallow(ctx context.Context, userID int64) error {
	return d.rdb.SRem(ctx, allowedUsersKey, member(userID)).Err()
}

// Ban adds a user to the ban set. Banned users are ignored before any
// history recording.
func (d *UserDirectory) Ban(ctx context.Context, userID int64) error {
	return d.rdb.SAdd(ctx, bannedUsersKey, member(userID)).Err()
}

// IsBanned reports whether the user is banned.
func (d *UserDirectory) IsBanned(ctx context.Context, userID int64) (bool, error) {
	ok, err := d.rdb.SIsMember(ctx, bannedUsersKey, member(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check ban list: %w", err)
	}
	return ok, nil
}

// IsAdmin reports whether the user is the configured admin.
func (d *UserDirectory) IsAdmin(userID int64) bool {
	return userID != 0 && userID == d.adminID
}
