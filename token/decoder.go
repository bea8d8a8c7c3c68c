// Package token verifies and decodes the signed identity tokens the
// credential backend attaches to session events.
//
// The orchestrator never fabricates a session: every session it exposes is
// materialized from a freshly verified identity token, so a forged or
// expired token can never surface as an authenticated principal.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 verifies with an Ed25519 public key (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 verifies with a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrTokenInvalid covers signature, shape, and expiry failures.
	ErrTokenInvalid = errors.New("invalid identity token")
	// ErrTokenFromFuture means the token's issued-at is further ahead of the
	// local clock than the configured tolerance.
	ErrTokenFromFuture = errors.New("identity token issued in the future")
)

// Config holds verification parameters for backend identity tokens.
type Config struct {
	SigningMethod SigningMethod
	// PublicKey is the Ed25519 verify key (raw 32 bytes); for HS256 it is
	// the shared secret.
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// IdentityClaims is the principal description carried by a backend identity
// token. Subject is the backend's stable account ID.
type IdentityClaims struct {
	Email           string   `json:"email,omitempty"`
	EmailVerified   bool     `json:"email_verified,omitempty"`
	PhoneNumber     string   `json:"phone_number,omitempty"`
	DisplayName     string   `json:"name,omitempty"`
	AnonymousLinked bool     `json:"anon_linked,omitempty"`
	Providers       []string `json:"providers,omitempty"`
	jwt.RegisteredClaims
}

// Decoder verifies identity tokens against a single backend key.
type Decoder struct {
	config Config
}

// NewDecoder validates cfg and returns a Decoder.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("hs256 requires a shared secret")
		}
	case MethodEd25519:
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 requires a 32-byte public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Decoder{config: cfg}, nil
}

// Decode verifies tokenStr and returns its claims. Any verification failure
// maps to ErrTokenInvalid; clock-skew abuse maps to ErrTokenFromFuture.
func (d *Decoder) Decode(tokenStr string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}

	options := []jwt.ParserOption{
		jwt.WithLeeway(d.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	switch d.config.SigningMethod {
	case MethodHS256:
		options = append(options, jwt.WithValidMethods([]string{"HS256"}))
	case MethodEd25519:
		options = append(options, jwt.WithValidMethods([]string{"EdDSA"}))
	}
	if d.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(d.config.Issuer))
	}
	if d.config.Audience != "" {
		options = append(options, jwt.WithAudience(d.config.Audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, d.keyFunc, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil {
		if claims.IssuedAt.Time.After(time.Now().Add(d.config.MaxFutureIAT)) {
			return nil, ErrTokenFromFuture
		}
	}

	return claims, nil
}

func (d *Decoder) keyFunc(*jwt.Token) (any, error) {
	switch d.config.SigningMethod {
	case MethodHS256:
		return d.config.PublicKey, nil
	case MethodEd25519:
		return ed25519.PublicKey(d.config.PublicKey), nil
	default:
		return nil, errors.New("unsupported signing method")
	}
}
