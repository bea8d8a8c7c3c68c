package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/stefmil/authkit/internal/limiters"
	"github.com/stefmil/authkit/phone"
)

// issuePhoneChallenge is the shared entry for phone login and phone
// registration. The resend limiter runs first so a throttled number never
// reaches the human-verification widget or the SMS provider.
func (o *Orchestrator) issuePhoneChallenge(ctx context.Context, phoneE164 string) (string, error) {
	if o.resend != nil {
		if err := o.resend.Check(ctx, phoneE164); err != nil {
			if errors.Is(err, limiters.ErrResendLimited) {
				o.metrics.Inc(MetricLoginRateLimited)
				o.emitAudit(ctx, AuditEvent{
					EventType: AuditLoginRateLimited,
					Error:     "phone challenge resend budget exhausted",
				})
				return "", fmt.Errorf("%w: too many codes requested for this number", ErrRateLimited)
			}
			o.log.Error().Err(err).Msg("resend limiter unavailable")
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	ch, err := o.phoneFlow.Start(ctx, phoneE164)
	if err != nil {
		o.metrics.Inc(MetricPhoneCodeFailed)
		o.emitAudit(ctx, AuditEvent{EventType: AuditPhoneCodeFailed, Error: err.Error()})
		return "", err
	}

	o.metrics.Inc(MetricPhoneChallengeIssued)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditPhoneChallengeIssued,
		Success:   true,
		Metadata:  map[string]string{"challenge_id": ch.ID},
	})
	o.log.Info().Str("challenge_id", ch.ID).Msg("phone challenge issued")

	return ch.ID, nil
}

// ConfirmPhoneCode submits the user's one-time code against the identified
// challenge. A stale or expired challenge fails with [ErrChallengeExpired];
// a wrong code consumes the challenge and the caller must request a new
// one.
func (o *Orchestrator) ConfirmPhoneCode(ctx context.Context, challengeID, code string) error {
	// Capture the number before Confirm consumes the challenge.
	pending, havePending := o.phoneFlow.Pending()

	err := o.phoneFlow.Confirm(ctx, challengeID, code)
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrChallengeExpired):
			o.metrics.Inc(MetricPhoneChallengeExpired)
		default:
			o.metrics.Inc(MetricPhoneCodeFailed)
		}
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditPhoneCodeFailed,
			Error:     err.Error(),
			Metadata:  map[string]string{"challenge_id": challengeID},
		})
		return err
	}

	// A confirmed number earned its resend budget back.
	if o.resend != nil && havePending {
		if rerr := o.resend.Reset(ctx, pending.Number); rerr != nil {
			o.log.Warn().Err(rerr).Msg("resend budget reset failed")
		}
	}

	o.metrics.Inc(MetricPhoneCodeConfirmed)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditPhoneCodeConfirmed,
		Success:   true,
		Metadata:  map[string]string{"challenge_id": challengeID},
	})
	return nil
}

// CancelPhoneChallenge abandons any pending challenge and resets the
// human-verification widget. Safe to call when nothing is pending.
func (o *Orchestrator) CancelPhoneChallenge() {
	if o.phoneFlow.State() == phone.StateChallengeSent {
		o.metrics.Inc(MetricPhoneChallengeCancelled)
		o.emitAudit(context.Background(), AuditEvent{
			EventType: AuditPhoneChallengeCancel,
			Success:   true,
		})
	}
	o.phoneFlow.Cancel()
}

// PhoneState reports where the one-time-code flow currently stands.
func (o *Orchestrator) PhoneState() phone.State {
	return o.phoneFlow.State()
}
