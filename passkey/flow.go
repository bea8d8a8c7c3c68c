package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
)

var (
	// ErrCancelled means the user aborted the local authenticator ceremony
	// (or it timed out). Benign by contract: callers must not render it as a
	// hard failure, and the flow never submits anything after it.
	ErrCancelled = errors.New("authenticator ceremony cancelled")
	// ErrChallengeUnavailable wraps a failure to fetch the ceremony
	// challenge from the backend.
	ErrChallengeUnavailable = errors.New("passkey challenge unavailable")
	// ErrChallengeMalformed means the backend's challenge payload could not
	// be decoded from its transport encoding.
	ErrChallengeMalformed = errors.New("passkey challenge malformed")
	// ErrCeremonyFailed wraps authenticator failures other than cancellation.
	ErrCeremonyFailed = errors.New("authenticator ceremony failed")
)

// Backend is the slice of the credential backend the passkey flow needs.
// Challenges and ceremony results travel as JSON in the WebAuthn wire shape;
// challenge expiry and attestation verification are the backend's concern.
type Backend interface {
	PasskeyRegistrationChallenge(ctx context.Context) ([]byte, error)
	VerifyPasskeyRegistration(ctx context.Context, attestation []byte) error
	PasskeyAssertionChallenge(ctx context.Context) ([]byte, error)
	VerifyPasskeyAssertion(ctx context.Context, assertion []byte) error
}

// Authenticator runs the local credential ceremony (platform biometric
// prompt, security key, etc.). Implementations report user abandonment by
// returning an error wrapping ErrCancelled.
type Authenticator interface {
	Create(ctx context.Context, options protocol.PublicKeyCredentialCreationOptions) (*protocol.CredentialCreationResponse, error)
	Get(ctx context.Context, options protocol.PublicKeyCredentialRequestOptions) (*protocol.CredentialAssertionResponse, error)
}

// Flow drives WebAuthn registration and assertion round trips.
type Flow struct {
	backend       Backend
	authenticator Authenticator
}

// NewFlow creates a passkey flow over the given backend and local authenticator.
func NewFlow(backend Backend, authenticator Authenticator) (*Flow, error) {
	if backend == nil {
		return nil, errors.New("passkey: nil backend")
	}
	if authenticator == nil {
		return nil, errors.New("passkey: nil authenticator")
	}
	return &Flow{backend: backend, authenticator: authenticator}, nil
}

// Register links a new passkey to the currently authenticated subject.
//
// The backend's challenge carries the descriptors of already-registered
// credentials so the authenticator can refuse a duplicate. The challenge is
// single-use and expires server-side, so a failure anywhere in the round
// trip leaves no partial state behind.
func (f *Flow) Register(ctx context.Context) error {
	raw, err := f.backend.PasskeyRegistrationChallenge(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	var creation protocol.CredentialCreation
	if err := json.Unmarshal(raw, &creation); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeMalformed, err)
	}
	if len(creation.Response.Challenge) == 0 {
		return fmt.Errorf("%w: empty challenge", ErrChallengeMalformed)
	}

	cred, err := f.authenticator.Create(ctx, creation.Response)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	attestation, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	return f.backend.VerifyPasskeyRegistration(ctx, attestation)
}

// Assert runs the sign-in direction of the ceremony: the authenticator
// answers the backend's assertion challenge with one of the credentials in
// the allow list.
func (f *Flow) Assert(ctx context.Context) error {
	raw, err := f.backend.PasskeyAssertionChallenge(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	var assertion protocol.CredentialAssertion
	if err := json.Unmarshal(raw, &assertion); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeMalformed, err)
	}
	if len(assertion.Response.Challenge) == 0 {
		return fmt.Errorf("%w: empty challenge", ErrChallengeMalformed)
	}

	cred, err := f.authenticator.Get(ctx, assertion.Response)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	return f.backend.VerifyPasskeyAssertion(ctx, payload)
}
