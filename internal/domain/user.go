// Package domain contains the signaling records without transport logic.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// ParseUserID trims and validates a caller-supplied identifier.
func ParseUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}

// NewGuestID is used when a peer does not name itself.
func NewGuestID() UserID {
	return UserID("guest-" + uuid.NewString()[:8])
}

// NewCallID returns a fresh random call identifier.
func NewCallID() CallID {
	return CallID(uuid.NewString())
}
