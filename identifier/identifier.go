package identifier

import (
	"regexp"
	"strings"
)

// Kind tags the channel a raw login input belongs to.
type Kind uint8

const (
	// Unknown is returned when the input matches no supported channel.
	Unknown Kind = iota
	// Email is an email address identifier.
	Email
	// Phone is a phone number identifier, normalized to E.164 form.
	Phone
	// Username is a display alias resolved through the username directory.
	Username
)

// String describes the string operation and its observable behavior.
func (k Kind) String() string {
	switch k {
	case Email:
		return "email"
	case Phone:
		return "phone"
	case Username:
		return "username"
	default:
		return "unknown"
	}
}

// Identifier is the classified, normalized form of a raw login input.
// It is produced once per input and never mutated afterwards.
type Identifier struct {
	Kind  Kind
	Value string
}

// Match order is load-bearing: a short all-digit string is a phone number,
// never a username, so the phone pattern must win before the username one.
var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,24}$`)
)

// Classify tags a raw user-supplied identifier as email, phone, or username,
// first match wins in that order. It is pure and total: no I/O, no side
// effects, and unmatchable input yields Kind Unknown rather than an error.
//
// Phone values are normalized to international form with a leading "+",
// usernames are lowercased. Email values are kept as typed.
func Classify(raw string) Identifier {
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		return Identifier{Kind: Unknown, Value: trimmed}
	case emailPattern.MatchString(trimmed):
		return Identifier{Kind: Email, Value: trimmed}
	case phonePattern.MatchString(trimmed):
		if !strings.HasPrefix(trimmed, "+") {
			trimmed = "+" + trimmed
		}
		return Identifier{Kind: Phone, Value: trimmed}
	case usernamePattern.MatchString(trimmed):
		return Identifier{Kind: Username, Value: strings.ToLower(trimmed)}
	default:
		return Identifier{Kind: Unknown, Value: trimmed}
	}
}
