package authkit

import (
	"context"
	"time"

	"github.com/stefmil/authkit/phone"
)

// Session is the orchestrator's view of the authenticated principal,
// materialized from a verified backend identity token. Replaced wholesale
// on every backend-reported identity change; no field is ever mutated in
// place.
type Session struct {
	SubjectID       string
	Email           string
	PhoneNumber     string
	DisplayName     string
	EmailVerified   bool
	AnonymousLinked bool
}

// SessionEventKind tags a backend session notification.
type SessionEventKind uint8

const (
	// SessionSignedIn reports a newly authenticated principal.
	SessionSignedIn SessionEventKind = iota
	// SessionUpdated reports a profile or credential mutation on the
	// current principal.
	SessionUpdated
	// SessionSignedOut reports that no principal is authenticated.
	SessionSignedOut
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionSignedIn:
		return "signed_in"
	case SessionUpdated:
		return "updated"
	case SessionSignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// SessionEvent is one notification on the backend's standing session
// subscription. IdentityToken carries the signed principal description and
// is empty for SessionSignedOut.
type SessionEvent struct {
	Kind          SessionEventKind
	IdentityToken string
}

// Step tells the caller whether an operation finished or requires a second
// user-visible step.
type Step string

const (
	// StepNone means the credential was accepted; the session arrives via
	// the session subscription.
	StepNone Step = ""
	// StepPhoneCode means an SMS code was dispatched and must be answered
	// through ConfirmPhoneCode.
	StepPhoneCode Step = "phone-code"
	// StepEmailVerify means the account was created and a verification
	// email dispatched; the session stays unverified until the backend
	// reports otherwise.
	StepEmailVerify Step = "email-verify"
)

// LoginResult is returned by Login and Register. ChallengeID is set only
// when Step is StepPhoneCode.
type LoginResult struct {
	Step        Step
	ChallengeID string
}

// RegisterRequest is the input for Register. Identifier is the raw
// user-supplied string; Password is required for the email channel and
// ignored for phone; DisplayName is optional.
type RegisterRequest struct {
	Identifier  string
	Password    string
	DisplayName string
}

// LinkedProvider records one external OAuth provider attached to the
// current session. The list grows monotonically for a session's lifetime;
// this layer never removes an entry.
type LinkedProvider struct {
	ProviderID string
	LinkedAt   time.Time
}

// PhoneConfirmation is the backend's opaque handle for one issued SMS code.
type PhoneConfirmation = phone.ConfirmationHandle

// HumanVerifier is the shared bot-mitigation widget gating SMS dispatch.
type HumanVerifier = phone.HumanVerifier

// CredentialBackend is the capability contract of the hosted identity
// provider. The orchestrator never talks to SMS or email infrastructure
// directly; every verification artifact is issued and checked by the
// backend.
//
// Methods return quickly with an error on rejection; accepted credentials
// surface asynchronously as a SessionEvent on the SessionChanges channel.
// Implementations classify failures by wrapping the package's error
// sentinels (ErrWrongCredential, ErrRateLimited, ErrChallengeExpired,
// ErrProviderAlreadyLinked, ErrBackendUnavailable).
type CredentialBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithOAuth(ctx context.Context, provider string) error
	CreateAccount(ctx context.Context, email, password string) error
	UpdateDisplayName(ctx context.Context, displayName string) error
	SendEmailVerification(ctx context.Context) error
	UpdatePassword(ctx context.Context, newPassword string) error

	// IssuePhoneChallenge dispatches an SMS code; humanProof is the
	// bot-mitigation token obtained from the shared widget.
	IssuePhoneChallenge(ctx context.Context, phoneE164, humanProof string) (PhoneConfirmation, error)

	// Passkey ceremonies; payloads travel in the WebAuthn JSON wire shape.
	PasskeyRegistrationChallenge(ctx context.Context) ([]byte, error)
	VerifyPasskeyRegistration(ctx context.Context, attestation []byte) error
	PasskeyAssertionChallenge(ctx context.Context) ([]byte, error)
	VerifyPasskeyAssertion(ctx context.Context, assertion []byte) error

	// Reauthenticate re-proves the current password and returns a fresh
	// short-lived proof token for a sensitive mutation.
	Reauthenticate(ctx context.Context, password string) (string, error)
	LinkOAuthProvider(ctx context.Context, provider string) error

	SignOut(ctx context.Context) error

	// SessionChanges is the standing subscription, established once at
	// Build time and consumed for the orchestrator's whole lifetime. It
	// fires on sign-in, sign-out, and profile mutation.
	SessionChanges() <-chan SessionEvent
}
