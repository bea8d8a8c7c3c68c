package authkit

import "context"

type contextKey int

const (
	clientIPContextKey contextKey = iota
	reauthProofContextKey
)

// WithClientIP attaches the caller's IP address to the context so that
// audit events record it. Transport layers should call this before invoking
// any orchestrator operation.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

func withReauthProof(ctx context.Context, proof string) context.Context {
	return context.WithValue(ctx, reauthProofContextKey, proof)
}

// ReauthProofFromContext returns the proof token minted by a successful
// [Orchestrator.WithReauth] credential check. Backends that require the
// proof on sensitive mutations read it from the mutation's context.
func ReauthProofFromContext(ctx context.Context) (string, bool) {
	proof, ok := ctx.Value(reauthProofContextKey).(string)
	return proof, ok
}
