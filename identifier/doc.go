// Package identifier classifies raw user-supplied login input into the
// channel it belongs to: email, phone number, or username.
//
// Classification is a pure string operation with a fixed match order
// (email, then phone, then username). The orchestrator relies on the
// returned kind to pick the credential-verification path, so the package
// must never perform I/O or consult any store.
package identifier
