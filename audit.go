package authkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the orchestrator.
const (
	AuditLoginSuccess          = "login_success"
	AuditLoginFailure          = "login_failure"
	AuditLoginRateLimited      = "login_rate_limited"
	AuditIdentifierRejected    = "identifier_rejected"
	AuditPhoneChallengeIssued  = "phone_challenge_issued"
	AuditPhoneCodeConfirmed    = "phone_code_confirmed"
	AuditPhoneCodeFailed       = "phone_code_failed"
	AuditPhoneChallengeCancel  = "phone_challenge_cancelled"
	AuditRegisterSuccess       = "register_success"
	AuditRegisterFailure       = "register_failure"
	AuditEmailVerificationSent = "email_verification_sent"
	AuditUsernameLinked        = "username_linked"
	AuditPasskeyRegistered     = "passkey_registered"
	AuditPasskeyAsserted       = "passkey_asserted"
	AuditPasskeyCancelled      = "passkey_cancelled"
	AuditPasskeyFailed         = "passkey_failed"
	AuditOAuthSignIn           = "oauth_sign_in"
	AuditProviderLinked        = "provider_linked"
	AuditReauthDenied          = "reauth_denied"
	AuditLogout                = "logout"
	AuditSessionChange         = "session_change"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SubjectID string            `json:"subject_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
