package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stefmil/authkit/directory"
	"github.com/stefmil/authkit/identifier"
)

// Login resolves rawIdentifier and dispatches to the matching credential
// path.
//
// Email identifiers are checked against password immediately. Username
// identifiers are first resolved to an email through the directory; an
// unmapped username fails with [ErrIdentityNotFound] before any credential
// is presented. Phone identifiers ignore password and open a one-time-code
// challenge; the caller completes it with [Orchestrator.ConfirmPhoneCode].
//
// Starting any login abandons a pending phone challenge from an earlier
// attempt.
func (o *Orchestrator) Login(ctx context.Context, rawIdentifier, password string) (*LoginResult, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	// A fresh attempt always supersedes a half-finished phone challenge.
	o.CancelPhoneChallenge()

	id := identifier.Classify(rawIdentifier)

	switch id.Kind {
	case identifier.Email:
		return o.loginWithEmail(ctx, id.Value, password, start)

	case identifier.Username:
		email, err := o.dir.Lookup(ctx, id.Value)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				o.metrics.Inc(MetricIdentityNotFound)
				o.emitAudit(ctx, AuditEvent{
					EventType: AuditLoginFailure,
					Error:     "username not linked",
					Metadata:  map[string]string{"username": id.Value},
				})
				return nil, ErrIdentityNotFound
			}
			o.log.Error().Err(err).Msg("username directory lookup failed")
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return o.loginWithEmail(ctx, email, password, start)

	case identifier.Phone:
		challengeID, err := o.issuePhoneChallenge(ctx, id.Value)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Step: StepPhoneCode, ChallengeID: challengeID}, nil

	default:
		o.metrics.Inc(MetricIdentifierRejected)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditIdentifierRejected,
			Error:     "unclassifiable identifier",
		})
		return nil, fmt.Errorf("%w: identifier is not an email, phone number, or username", ErrValidation)
	}
}

func (o *Orchestrator) loginWithEmail(ctx context.Context, email, password string, start time.Time) (*LoginResult, error) {
	err := o.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			o.metrics.Inc(MetricLoginRateLimited)
			o.emitAudit(ctx, AuditEvent{EventType: AuditLoginRateLimited, Error: err.Error()})
		default:
			o.metrics.Inc(MetricLoginFailure)
			o.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailure, Error: err.Error()})
		}
		return nil, err
	}

	o.metrics.Inc(MetricLoginSuccess)
	o.metrics.Observe(MetricLoginLatency, time.Since(start))
	o.emitAudit(ctx, AuditEvent{EventType: AuditLoginSuccess, Success: true})
	o.log.Info().Msg("password sign-in accepted")

	// The session itself arrives through the backend's change stream.
	return &LoginResult{Step: StepNone}, nil
}

// OAuthSignIn starts a provider-hosted sign-in. The resulting session
// arrives through the backend's change stream like any other sign-in.
func (o *Orchestrator) OAuthSignIn(ctx context.Context, providerID string) error {
	if err := o.backend.SignInWithOAuth(ctx, providerID); err != nil {
		if errors.Is(err, ErrUserCancelled) {
			o.emitAudit(ctx, AuditEvent{
				EventType: AuditLoginFailure,
				Error:     "cancelled",
				Metadata:  map[string]string{"provider": providerID},
			})
			return err
		}
		o.metrics.Inc(MetricLoginFailure)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditLoginFailure,
			Error:     err.Error(),
			Metadata:  map[string]string{"provider": providerID},
		})
		return err
	}

	o.metrics.Inc(MetricOAuthSignIn)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditOAuthSignIn,
		Success:   true,
		Metadata:  map[string]string{"provider": providerID},
	})
	return nil
}

// Logout signs the current principal out. The nil session arrives through
// the change stream.
func (o *Orchestrator) Logout(ctx context.Context) error {
	if err := o.backend.SignOut(ctx); err != nil {
		return err
	}
	o.metrics.Inc(MetricLogout)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditLogout,
		SubjectID: subjectOf(o.Session()),
		Success:   true,
	})
	return nil
}
