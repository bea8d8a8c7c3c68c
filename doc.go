// Package authkit is the identity-resolution and multi-channel
// authentication layer that sits between an application and its hosted
// credential backend.
//
// A raw user-supplied identifier (email, phone number, or username) is
// classified once and routed to the matching verification path: password
// sign-in for email, directory resolution then password for usernames, an
// SMS one-time-code challenge for phone numbers, and WebAuthn passkey
// ceremonies (registration on an existing session, assertion as its own
// sign-in channel). Sensitive account mutations are gated behind a
// reauthentication guard.
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Orchestrator], [Builder],
// [Config], the error taxonomy, and value types (Session, LoginResult,
// AuditEvent). The credential backend itself (password verification, token
// issuance, SMS and email delivery, WebAuthn attestation checks) stays
// behind the [CredentialBackend] contract and is never reimplemented here.
//
// # Session model
//
// The orchestrator owns exactly one session view. It is replaced wholesale
// on every backend-pushed identity change and never mutated in place or
// cached across backend state: a session exists if and only if the backend
// reports an authenticated principal through the standing subscription
// established at Build time.
package authkit
