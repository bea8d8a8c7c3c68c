package phone

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Flow.
type State uint8

const (
	// StateIdle means no challenge has been issued or the last one was consumed.
	StateIdle State = iota
	// StateChallengeSent means a code is on its way and Confirm may be called.
	StateChallengeSent
	// StateConfirmed is the terminal success state of a single attempt.
	StateConfirmed
	// StateFailed is terminal for a rejected code; Start begins a fresh attempt.
	StateFailed
)

// String describes the string operation and its observable behavior.
func (s State) String() string {
	switch s {
	case StateChallengeSent:
		return "challenge-sent"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

var (
	// ErrChallengeExpired is returned when confirming a handle that was
	// invalidated: superseded by a newer Start, already consumed, or past
	// its TTL.
	ErrChallengeExpired = errors.New("phone challenge expired")
	// ErrNoChallenge is returned when Confirm is called with nothing pending.
	ErrNoChallenge = errors.New("no phone challenge pending")
	// ErrVerifierUnavailable wraps failures obtaining a human-verification token.
	ErrVerifierUnavailable = errors.New("human verifier unavailable")
)

// ConfirmationHandle is the backend's opaque handle for one issued SMS code.
// Confirm proves possession of the phone by answering with the received code.
type ConfirmationHandle interface {
	Confirm(ctx context.Context, code string) error
}

// Issuer dispatches an SMS challenge to a phone number. Implemented by the
// credential backend; humanProof is the bot-mitigation token required before
// any SMS is sent.
type Issuer interface {
	IssuePhoneChallenge(ctx context.Context, phoneE164, humanProof string) (ConfirmationHandle, error)
}

// HumanVerifier is the shared bot-mitigation widget. Token blocks until a
// proof is available; Reset clears widget state after a failed or abandoned
// attempt. Implementations are not reentrant: the Flow serializes access.
type HumanVerifier interface {
	Token(ctx context.Context) (string, error)
	Reset()
}

// VerifierFactory builds the widget on first use. The backend SDK rejects a
// second registration against the same anchor, so the factory is invoked at
// most once per Flow lifetime.
type VerifierFactory func() (HumanVerifier, error)

// Challenge is the pending state of one dispatched phone verification.
type Challenge struct {
	ID       string
	Number   string
	IssuedAt time.Time

	handle ConfirmationHandle
}

// Flow drives phone challenges against an Issuer. A Flow owns at most one
// live Challenge; all methods are safe for concurrent use.
type Flow struct {
	issuer  Issuer
	factory VerifierFactory
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	verifier HumanVerifier
	state    State
	pending  *Challenge
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithNow injects the clock, primarily for tests.
func WithNow(now func() time.Time) FlowOption {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow creates a phone challenge flow. ttl bounds how long an issued
// challenge stays confirmable; zero means no local expiry beyond whatever
// the backend enforces.
func NewFlow(issuer Issuer, factory VerifierFactory, ttl time.Duration, opts ...FlowOption) (*Flow, error) {
	if issuer == nil {
		return nil, errors.New("phone: nil issuer")
	}
	if factory == nil {
		return nil, errors.New("phone: nil verifier factory")
	}

	f := &Flow{
		issuer:  issuer,
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// State reports the current lifecycle position.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns a copy of the live challenge, if any.
func (f *Flow) Pending() (Challenge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return Challenge{}, false
	}
	c := *f.pending
	c.handle = nil
	return c, true
}

func (f *Flow) humanVerifier() (HumanVerifier, error) {
	if f.verifier != nil {
		return f.verifier, nil
	}
	v, err := f.factory()
	if err != nil || v == nil {
		return nil, ErrVerifierUnavailable
	}
	f.verifier = v
	return v, nil
}

// Start issues a fresh SMS challenge to phoneE164. Any previously pending
// challenge is invalidated first, so a stale handle can never confirm
// against the new state. On success the flow is in StateChallengeSent and
// the returned challenge ID must be presented to Confirm.
func (f *Flow) Start(ctx context.Context, phoneE164 string) (Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Supersede whatever was in flight.
	f.pending = nil

	verifier, err := f.humanVerifier()
	if err != nil {
		f.state = StateFailed
		return Challenge{}, err
	}

	proof, err := verifier.Token(ctx)
	if err != nil {
		f.state = StateFailed
		verifier.Reset()
		return Challenge{}, errors.Join(ErrVerifierUnavailable, err)
	}

	handle, err := f.issuer.IssuePhoneChallenge(ctx, phoneE164, proof)
	if err != nil {
		f.state = StateFailed
		verifier.Reset()
		return Challenge{}, err
	}

	f.pending = &Challenge{
		ID:       uuid.NewString(),
		Number:   phoneE164,
		IssuedAt: f.now(),
		handle:   handle,
	}
	f.state = StateChallengeSent

	c := *f.pending
	c.handle = nil
	return c, nil
}

// Confirm answers the pending challenge with the received code. The pending
// challenge is consumed whatever the outcome: a correct code moves the flow
// to StateConfirmed, a rejected one to StateFailed, and either way a second
// Confirm against the same ID reports ErrChallengeExpired.
func (f *Flow) Confirm(ctx context.Context, challengeID, code string) error {
	f.mu.Lock()

	if f.pending == nil {
		if f.state == StateConfirmed || f.state == StateFailed {
			f.mu.Unlock()
			return ErrChallengeExpired
		}
		f.mu.Unlock()
		return ErrNoChallenge
	}
	if challengeID == "" || challengeID != f.pending.ID {
		f.mu.Unlock()
		return ErrChallengeExpired
	}
	if f.ttl > 0 && f.now().Sub(f.pending.IssuedAt) > f.ttl {
		f.pending = nil
		f.state = StateFailed
		f.resetVerifierLocked()
		f.mu.Unlock()
		return ErrChallengeExpired
	}

	handle := f.pending.handle
	f.pending = nil
	f.mu.Unlock()

	// The backend round trip happens outside the lock; the handle was
	// already consumed above, so a concurrent Confirm cannot reuse it.
	err := handle.Confirm(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		// A newer Start superseded this attempt while the round trip was in
		// flight; its state wins.
		return err
	}
	if err != nil {
		f.state = StateFailed
		f.resetVerifierLocked()
		return err
	}
	f.state = StateConfirmed
	return nil
}

// Cancel abandons the pending challenge, if any, and resets the widget so a
// later Start gets a clean instance. Safe to call in any state.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = nil
	if f.state == StateChallengeSent {
		f.state = StateIdle
	}
	f.resetVerifierLocked()
}

func (f *Flow) resetVerifierLocked() {
	if f.verifier != nil {
		f.verifier.Reset()
	}
}
