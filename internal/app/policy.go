package app

import (
	"errors"
	"fmt"

	"github.com/dkeye/callrelay/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow consumers: a peer that cannot keep up with
// candidate events would miss them anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy drops the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.SessionID) BackpressureAction {
	return DropFrame
}

var ErrUnknownPolicy = errors.New("unknown backpressure policy")

// PolicyByName resolves the configured policy name: "kick" or "drop".
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "kick", "":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
