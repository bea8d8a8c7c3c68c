package authkit

import (
	"context"
	"errors"
	"fmt"
)

// RegisterPasskey runs the full passkey registration ceremony for the
// signed-in principal. A user dismissing the platform prompt surfaces as
// [ErrUserCancelled] and nothing is sent to the backend.
func (o *Orchestrator) RegisterPasskey(ctx context.Context) error {
	if o.passkeyFlow == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrBackendUnavailable)
	}
	session := o.Session()
	if session == nil {
		return ErrNotAuthenticated
	}

	if err := o.passkeyFlow.Register(ctx); err != nil {
		if errors.Is(err, ErrUserCancelled) {
			o.metrics.Inc(MetricPasskeyCancelled)
			o.emitAudit(ctx, AuditEvent{
				EventType: AuditPasskeyCancelled,
				SubjectID: session.SubjectID,
				Error:     "cancelled",
			})
			return err
		}
		o.metrics.Inc(MetricPasskeyFailed)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditPasskeyFailed,
			SubjectID: session.SubjectID,
			Error:     err.Error(),
		})
		return err
	}

	o.metrics.Inc(MetricPasskeyRegistered)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditPasskeyRegistered,
		SubjectID: session.SubjectID,
		Success:   true,
	})
	o.log.Info().Str("subject", session.SubjectID).Msg("passkey registered")
	return nil
}

// AssertPasskey runs a passkey sign-in ceremony. No session is required;
// like the other sign-in channels, the accepted session arrives through the
// backend's change stream.
func (o *Orchestrator) AssertPasskey(ctx context.Context) error {
	if o.passkeyFlow == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrBackendUnavailable)
	}

	if err := o.passkeyFlow.Assert(ctx); err != nil {
		if errors.Is(err, ErrUserCancelled) {
			o.metrics.Inc(MetricPasskeyCancelled)
			o.emitAudit(ctx, AuditEvent{
				EventType: AuditPasskeyCancelled,
				Error:     "cancelled",
			})
			return err
		}
		o.metrics.Inc(MetricPasskeyFailed)
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditPasskeyFailed,
			Error:     err.Error(),
		})
		return err
	}

	o.metrics.Inc(MetricPasskeyAsserted)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditPasskeyAsserted,
		Success:   true,
	})
	return nil
}
