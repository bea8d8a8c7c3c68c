package authkit

import (
	"context"
	"errors"
	"time"
)

// LinkOAuthProvider attaches an additional identity provider to the
// signed-in account. Linking a provider that is already attached fails with
// [ErrProviderAlreadyLinked] before the backend is called.
func (o *Orchestrator) LinkOAuthProvider(ctx context.Context, providerID string) error {
	session := o.Session()
	if session == nil {
		return ErrNotAuthenticated
	}

	o.mu.RLock()
	dup := false
	for _, p := range o.linked {
		if p.ProviderID == providerID {
			dup = true
			break
		}
	}
	o.mu.RUnlock()
	if dup {
		o.metrics.Inc(MetricProviderLinkRejected)
		return ErrProviderAlreadyLinked
	}

	if err := o.backend.LinkOAuthProvider(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderAlreadyLinked) {
			// The backend knew about a link we had not seen yet; record it so
			// the local view converges.
			o.rememberLink(providerID)
			o.metrics.Inc(MetricProviderLinkRejected)
			return err
		}
		if errors.Is(err, ErrUserCancelled) {
			return err
		}
		o.emitAudit(ctx, AuditEvent{
			EventType: AuditProviderLinked,
			SubjectID: session.SubjectID,
			Error:     err.Error(),
			Metadata:  map[string]string{"provider": providerID},
		})
		return err
	}

	o.rememberLink(providerID)

	o.metrics.Inc(MetricProviderLinked)
	o.emitAudit(ctx, AuditEvent{
		EventType: AuditProviderLinked,
		SubjectID: session.SubjectID,
		Success:   true,
		Metadata:  map[string]string{"provider": providerID},
	})
	return nil
}

// LinkedProviders returns the providers attached during this session, in
// link order.
func (o *Orchestrator) LinkedProviders() []LinkedProvider {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]LinkedProvider, len(o.linked))
	copy(out, o.linked)
	return out
}

func (o *Orchestrator) rememberLink(providerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.linked {
		if p.ProviderID == providerID {
			return
		}
	}
	o.linked = append(o.linked, LinkedProvider{
		ProviderID: providerID,
		LinkedAt:   time.Now().UTC(),
	})
}
