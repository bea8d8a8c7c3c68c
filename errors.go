package authkit

import (
	"errors"

	"github.com/stefmil/authkit/directory"
	"github.com/stefmil/authkit/passkey"
	"github.com/stefmil/authkit/phone"
)

// Error taxonomy of the authentication layer. Backend implementations are
// expected to classify their own failures by wrapping these sentinels so
// that taxonomy tags survive propagation; anything unclassified should wrap
// ErrBackendUnavailable.
var (
	// ErrValidation means the raw identifier matched no supported channel.
	// Raised locally, before any backend call.
	ErrValidation = errors.New("enter a valid email, username or phone number")
	// ErrIdentityNotFound means a username has no directory mapping. Raised
	// before any credential check so it cannot leak password validity.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrWrongCredential is the backend rejecting a password or code.
	ErrWrongCredential = errors.New("wrong credential")
	// ErrRateLimited means either the local resend throttle or the backend
	// imposed a cooldown.
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderAlreadyLinked is returned when linking an OAuth provider
	// that is already attached to the session's account.
	ErrProviderAlreadyLinked = errors.New("provider already linked")
	// ErrNotAuthenticated guards operations requiring a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRegistrationChannel rejects registration through a channel without
	// a deliverable verification artifact (usernames, unclassifiable input).
	ErrRegistrationChannel = errors.New("registration requires an email or phone identifier")
	// ErrBackendUnavailable wraps opaque backend transport failures.
	ErrBackendUnavailable = errors.New("credential backend unavailable")
	// ErrClosed is returned by operations on a closed orchestrator.
	ErrClosed = errors.New("orchestrator closed")
)

// Flow-owned sentinels re-exported so callers match one identity regardless
// of which layer raised the failure.
var (
	// ErrChallengeExpired means a phone confirmation handle is stale:
	// superseded, consumed, or past its TTL.
	ErrChallengeExpired = phone.ErrChallengeExpired
	// ErrNoPendingChallenge means ConfirmPhoneCode was called with no
	// challenge outstanding.
	ErrNoPendingChallenge = phone.ErrNoChallenge
	// ErrUserCancelled means the local authenticator ceremony was abandoned.
	// Expected and benign; never render it as a hard error.
	ErrUserCancelled = passkey.ErrCancelled
	// ErrUsernameTaken means the requested alias already maps to another
	// account.
	ErrUsernameTaken = directory.ErrTaken
)
