// Package phone implements the one-time-code challenge flow for phone
// number sign-in and registration.
//
// A Flow wraps a single verification attempt as a small state machine:
// Idle -> ChallengeSent -> Confirmed, with Failed as the terminal state for
// a rejected code. Exactly one challenge is live at a time; starting a new
// one invalidates the previous handle, and a confirmation is consumed on
// first use whatever the outcome.
//
// Challenge issuance is gated by a human-verification token obtained from a
// shared widget. The widget is a process-wide, non-reentrant resource: it is
// created once through the injected factory, reused across attempts, and
// reset whenever a flow fails or is cancelled so the next attempt does not
// inherit poisoned state.
package phone
