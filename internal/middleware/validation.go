package middleware

import (
	"errors"
	"strconv"
)

// ParseChatID validates and parses a chat id path parameter. Chat ids
// are signed: group chats are negative.
func ParseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid chat ID")
	}
	return id, nil
}

// ParseMessageID validates and parses a message id path parameter.
func ParseMessageID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid message ID")
	}
	return id, nil
}

// ParseLimit validates an optional limit query parameter.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid limit")
	}
	if n > max {
		n = max
	}
	return n, nil
}
