// Package directory maps usernames to the canonical email they alias.
//
// A mapping is created once, right after email registration, and is
// read-only from the authentication path afterwards. Lookup misses are the
// signal that a username has no account behind it; the caller must fail
// before any credential check so the miss cannot be confused with a wrong
// password.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Lookup when no mapping exists for the username.
	ErrNotFound = errors.New("username mapping not found")
	// ErrTaken is returned by Link when the username already maps to a
	// different email. The loser of a registration race gets this error
	// instead of silently overwriting the winner.
	ErrTaken = errors.New("username already taken")
	// ErrUnavailable wraps transport failures talking to the directory store.
	ErrUnavailable = errors.New("directory store unavailable")
)

// Directory resolves usernames to canonical emails and records new aliases.
// Usernames are expected to be lowercased by the caller before they reach
// the directory; implementations treat the key as case-sensitive.
type Directory interface {
	Lookup(ctx context.Context, username string) (string, error)
	Link(ctx context.Context, username, email string) error
}
