package authkit

import (
	"context"
	"errors"
)

// WithReauth re-proves the current password and, only on success, runs
// mutation with a fresh proof token in its context. The mutation is never
// invoked when the credential check fails: a wrong password surfaces as
// [ErrWrongCredential] and throttling as [ErrRateLimited].
//
// Backends that demand recent authentication for sensitive writes read the
// proof via [ReauthProofFromContext].
func (o *Orchestrator) WithReauth(ctx context.Context, currentPassword string, mutation func(ctx context.Context) error) error {
	session := o.Session()
	if session == nil {
		return ErrNotAuthenticated
	}

	proof, err := o.backend.Reauthenticate(ctx, currentPassword)
	if err != nil {
		if errors.Is(err, ErrWrongCredential) || errors.Is(err, ErrRateLimited) {
			o.metrics.Inc(MetricReauthDenied)
			o.emitAudit(ctx, AuditEvent{
				EventType: AuditReauthDenied,
				SubjectID: session.SubjectID,
				Error:     err.Error(),
			})
		}
		return err
	}

	o.metrics.Inc(MetricReauthSuccess)
	return mutation(withReauthProof(ctx, proof))
}

// ChangePassword is the canonical guarded mutation: it re-proves the
// current password and then asks the backend to install the new one.
func (o *Orchestrator) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return o.WithReauth(ctx, currentPassword, func(ctx context.Context) error {
		return o.backend.UpdatePassword(ctx, newPassword)
	})
}
