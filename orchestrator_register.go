package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/stefmil/authkit/directory"
	"github.com/stefmil/authkit/identifier"
)

// Register creates an account on the channel the identifier classifies to.
//
// Email registration creates the credential, applies the display name, and
// sends a verification mail; the result carries [StepEmailVerify]. Phone
// registration reuses the login challenge path and carries [StepPhoneCode];
// the backend creates the account when the code is confirmed. Usernames are
// not a registration channel, they are linked to an existing email account
// with [Orchestrator.LinkUsernameToEmail].
func (o *Orchestrator) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	o.CancelPhoneChallenge()

	id := identifier.Classify(req.Identifier)

	switch id.Kind {
	case identifier.Email:
		return o.registerWithEmail(ctx, id.Value, req)

	case identifier.Phone:
		challengeID, err := o.issuePhoneChallenge(ctx, id.Value)
		if err != nil {
			o.metrics.Inc(MetricRegisterFailure)
			return nil, err
		}
		return &LoginResult{Step: StepPhoneCode, ChallengeID: challengeID}, nil

	case identifier.Username:
		o.metrics.Inc(MetricRegisterFailure)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditRegisterFailure,
			Error:     "username is not a registration channel",
		})
		return nil, fmt.Errorf("%w: usernames are linked to an email account, not registered directly", ErrRegistrationChannel)

	default:
		o.metrics.Inc(MetricIdentifierRejected)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditIdentifierRejected,
			Error:     "unclassifiable identifier",
		})
		return nil, fmt.Errorf("%w: identifier is not an email or phone number", ErrValidation)
	}
}

func (o *Orchestrator) registerWithEmail(ctx context.Context, email string, req RegisterRequest) (*LoginResult, error) {
	if err := o.backend.CreateAccount(ctx, email, req.Password); err != nil {
		o.metrics.Inc(MetricRegisterFailure)
		o.emitAudit(ctx, AuditEvent{EventType: AuditRegisterFailure, Error: err.Error()})
		return nil, err
	}

	if req.DisplayName != "" {
		// The account exists either way; a failed rename is not worth
		// aborting the registration over.
		if err := o.backend.UpdateDisplayName(ctx, req.DisplayName); err != nil {
			o.log.Warn().Err(err).Msg("display name update failed after account creation")
		}
	}

	if err := o.backend.SendEmailVerification(ctx); err != nil {
		o.log.Warn().Err(err).Msg("verification mail send failed")
	} else {
		o.metrics.Inc(MetricEmailVerificationSent)
		o.emitAudit(ctx, AuditEvent{EventType: AuditEmailVerificationSent, Success: true})
	}

	o.metrics.Inc(MetricRegisterSuccess)
	o.emitAudit(ctx, AuditEvent{EventType: AuditRegisterSuccess, Success: true})
	o.log.Info().Msg("email account created")

	return &LoginResult{Step: StepEmailVerify}, nil
}

// LinkUsernameToEmail claims username for the given email account. The
// claim is first-writer-wins; a username already held by another email
// fails with [ErrUsernameTaken], while re-linking the same pair is
// idempotent.
func (o *Orchestrator) LinkUsernameToEmail(ctx context.Context, username, email string) error {
	id := identifier.Classify(username)
	if id.Kind != identifier.Username {
		o.metrics.Inc(MetricIdentifierRejected)
		return fmt.Errorf("%w: %q is not a valid username", ErrValidation, username)
	}

	if err := o.dir.Link(ctx, id.Value, email); err != nil {
		if errors.Is(err, directory.ErrTaken) {
			o.metrics.Inc(MetricUsernameConflict)
			o.emitAudit(ctx, AuditEvent{
				EventType: AuditUsernameLinked,
				Error:     "username already claimed",
				Metadata:  map[string]string{"username": id.Value},
			})
			return ErrUsernameTaken
		}
		o.log.Error().Err(err).Msg("username link failed")
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	o.metrics.Inc(MetricUsernameLinked)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditUsernameLinked,
		Success:   true,
		Metadata:  map[string]string{"username": id.Value},
	})
	return nil
}
