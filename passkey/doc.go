// Package passkey orchestrates the WebAuthn ceremonies that link and use a
// public-key credential as an additional authentication factor.
//
// The package owns the round trip only: fetch a challenge from the
// credential backend, decode it from transport form, run the local
// authenticator ceremony, and submit the signed result back for server-side
// verification. Relying-party attestation checks, credential storage, and
// the authenticator itself all live behind interfaces.
//
// A cancelled or timed-out ceremony is an expected outcome, surfaced as
// ErrCancelled and never followed by a verification call.
package passkey
