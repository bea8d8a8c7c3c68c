package authkit

import (
	"time"

	"github.com/stefmil/authkit/token"
)

// Config defines the tunable behavior of an [Orchestrator]. Pass it to
// [Builder.WithConfig]; the builder clones it, so a built orchestrator is
// unaffected by later mutation.
type Config struct {
	Phone     PhoneConfig
	Directory DirectoryConfig
	Token     TokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// PhoneConfig governs the SMS one-time-code flow.
type PhoneConfig struct {
	// ChallengeTTL bounds how long an issued code stays confirmable
	// locally; zero defers entirely to the backend's expiry.
	ChallengeTTL time.Duration

	// Resend throttling is enforced in front of the backend so an abusive
	// caller never reaches the SMS provider or the human-verification
	// widget.
	EnableResendThrottle bool
	ResendWindow         time.Duration
	MaxIssuesPerWindow   int
}

// DirectoryConfig governs the default Redis-backed username directory. It
// is ignored when a custom directory is injected via
// [Builder.WithDirectory].
type DirectoryConfig struct {
	RedisPrefix string
	CacheTTL    time.Duration
}

// TokenConfig configures verification of backend identity tokens. It maps
// onto [token.Config].
type TokenConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	VerifyKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// AuditConfig governs the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the calling flow when the
	// buffer is saturated; drops are counted and reported by
	// [Orchestrator.AuditDropped].
	DropIfFull bool
}

// MetricsConfig governs the in-process metrics counters.
type MetricsConfig struct {
	Enabled bool
	// EnableLatencyHistograms additionally tracks login latency buckets.
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Phone: PhoneConfig{
			ChallengeTTL:         5 * time.Minute,
			EnableResendThrottle: true,
			ResendWindow:         10 * time.Minute,
			MaxIssuesPerWindow:   5,
		},
		Directory: DirectoryConfig{
			RedisPrefix: "unm",
			CacheTTL:    time.Minute,
		},
		Token: TokenConfig{
			SigningMethod: string(token.MethodEd25519),
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.VerifyKey = append([]byte(nil), cfg.Token.VerifyKey...)
	return out
}
