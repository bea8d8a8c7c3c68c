package authkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stefmil/authkit/directory"
	"github.com/stefmil/authkit/internal/limiters"
	"github.com/stefmil/authkit/passkey"
	"github.com/stefmil/authkit/phone"
	"github.com/stefmil/authkit/token"
)

// Orchestrator is the front door for sign-in, registration, and the
// credential flows. It is built once via [Builder.Build] and is safe for
// concurrent use.
//
// Session state is owned by the backend: the orchestrator never mutates its
// local session directly, it replaces it wholesale whenever the backend
// publishes a change.
type Orchestrator struct {
	config      Config
	backend     CredentialBackend
	dir         directory.Directory
	ownedDir    *directory.RedisStore
	phoneFlow   *phone.Flow
	passkeyFlow *passkey.Flow
	resend      *limiters.Resend
	decoder     *token.Decoder
	audit       *auditDispatcher
	metrics     *Metrics
	log         zerolog.Logger

	mu      sync.RWMutex
	session *Session
	linked  []LinkedProvider

	subMu       sync.Mutex
	subnext     uint64
	subscribers map[uint64]chan *Session

	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Session returns a copy of the current session, or nil when signed out.
func (o *Orchestrator) Session() *Session {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.session == nil {
		return nil
	}
	s := *o.session
	return &s
}

// Metrics exposes the orchestrator's counters.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// AuditDropped reports how many audit events were discarded under load.
func (o *Orchestrator) AuditDropped() uint64 {
	return o.audit.Dropped()
}

// Subscribe registers a session observer. The returned channel receives the
// new session (nil on sign-out) after every backend session change; slow
// consumers miss updates rather than blocking the watcher. Call the cancel
// func to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan *Session, func()) {
	ch := make(chan *Session, 8)

	o.subMu.Lock()
	id := o.subnext
	o.subnext++
	o.subscribers[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		delete(o.subscribers, id)
		o.subMu.Unlock()
	}
	return ch, cancel
}

// Close stops the session watcher and flushes the audit dispatcher. The
// orchestrator must not be used afterwards.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
		o.wg.Wait()
		o.audit.Close()
		if o.ownedDir != nil {
			o.ownedDir.Close()
		}
	})
	return nil
}

func (o *Orchestrator) watchSessions() {
	defer o.wg.Done()

	changes := o.backend.SessionChanges()
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			o.applySessionEvent(ev)
		}
	}
}

func (o *Orchestrator) applySessionEvent(ev SessionEvent) {
	var next *Session

	if ev.Kind != SessionSignedOut && ev.IdentityToken != "" {
		claims, err := o.decoder.Decode(ev.IdentityToken)
		if err != nil {
			o.log.Warn().Err(err).Msg("rejecting session change with bad identity token")
			return
		}
		next = &Session{
			SubjectID:       claims.Subject,
			Email:           claims.Email,
			PhoneNumber:     claims.PhoneNumber,
			DisplayName:     claims.DisplayName,
			EmailVerified:   claims.EmailVerified,
			AnonymousLinked: claims.AnonymousLinked,
		}
	}

	o.mu.Lock()
	replaced := o.session != nil && next != nil && o.session.SubjectID != next.SubjectID
	o.session = next
	if next == nil || replaced {
		// Linked-provider bookkeeping belongs to exactly one account.
		o.linked = nil
	}
	o.mu.Unlock()

	if replaced {
		o.metrics.Inc(MetricSessionReplaced)
	}
	o.emitAudit(context.Background(), AuditEvent{
		EventType: AuditSessionChange,
		SubjectID: subjectOf(next),
		Success:   true,
		Metadata:  map[string]string{"kind": ev.Kind.String()},
	})

	o.subMu.Lock()
	for _, ch := range o.subscribers {
		var out *Session
		if next != nil {
			s := *next
			out = &s
		}
		select {
		case ch <- out:
		default:
		}
	}
	o.subMu.Unlock()
}

func (o *Orchestrator) emitAudit(ctx context.Context, ev AuditEvent) {
	if o.audit == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if ev.IP == "" {
		ev.IP = clientIPFromContext(ctx)
	}
	o.audit.Emit(ctx, ev)
}

func subjectOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.SubjectID
}
