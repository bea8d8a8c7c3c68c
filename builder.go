package authkit

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stefmil/authkit/directory"
	"github.com/stefmil/authkit/internal/limiters"
	"github.com/stefmil/authkit/passkey"
	"github.com/stefmil/authkit/phone"
	"github.com/stefmil/authkit/token"
)

// Builder assembles an [Orchestrator]. Configure it with the With* methods
// and call [Builder.Build] exactly once.
type Builder struct {
	config Config
	redis  *redis.Client

	backend         CredentialBackend
	authenticator   passkey.Authenticator
	verifierFactory phone.VerifierFactory
	dir             directory.Directory
	auditSink       AuditSink
	logger          *zerolog.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithBackend sets the credential backend. Required.
func (b *Builder) WithBackend(backend CredentialBackend) *Builder {
	b.backend = backend
	return b
}

// WithAuthenticator enables passkey ceremonies. Without it the passkey
// operations return [ErrBackendUnavailable].
func (b *Builder) WithAuthenticator(a passkey.Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithHumanVerifier sets the factory that creates the human-verification
// widget backing phone challenges. Required.
func (b *Builder) WithHumanVerifier(factory phone.VerifierFactory) *Builder {
	b.verifierFactory = factory
	return b
}

// WithDirectory overrides the default Redis-backed username directory.
func (b *Builder) WithDirectory(d directory.Directory) *Builder {
	b.dir = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component, and starts the
// session watcher. The builder cannot be reused afterwards.
func (b *Builder) Build() (*Orchestrator, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.backend == nil {
		return nil, errors.New("credential backend required")
	}
	if b.verifierFactory == nil {
		return nil, errors.New("human verifier factory required")
	}
	if len(cfg.Token.VerifyKey) == 0 {
		return nil, errors.New("token verification key required")
	}
	if b.redis == nil {
		if cfg.Phone.EnableResendThrottle {
			return nil, errors.New("resend throttle requires redis client")
		}
		if b.dir == nil {
			return nil, errors.New("redis client required for default username directory")
		}
	}

	decoder, err := token.NewDecoder(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PublicKey:     append([]byte(nil), cfg.Token.VerifyKey...),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	dir := b.dir
	var ownedDir *directory.RedisStore
	if dir == nil {
		ownedDir, err = directory.NewRedisStore(
			b.redis,
			cfg.Directory.CacheTTL,
			directory.WithKeyPrefix(cfg.Directory.RedisPrefix),
		)
		if err != nil {
			return nil, err
		}
		dir = ownedDir
	}

	var resend *limiters.Resend
	if cfg.Phone.EnableResendThrottle {
		resend, err = limiters.NewResend(b.redis, cfg.Phone.ResendWindow, cfg.Phone.MaxIssuesPerWindow)
		if err != nil {
			return nil, err
		}
	}

	phoneFlow, err := phone.NewFlow(b.backend, b.verifierFactory, cfg.Phone.ChallengeTTL)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	o := &Orchestrator{
		config:      cfg,
		backend:     b.backend,
		dir:         dir,
		ownedDir:    ownedDir,
		phoneFlow:   phoneFlow,
		resend:      resend,
		decoder:     decoder,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		log:         logger,
		subscribers: make(map[uint64]chan *Session),
		done:        make(chan struct{}),
	}
	if b.authenticator != nil {
		o.passkeyFlow, err = passkey.NewFlow(b.backend, b.authenticator)
		if err != nil {
			return nil, err
		}
	}

	o.wg.Add(1)
	go o.watchSessions()

	b.built = true

	return o, nil
}
