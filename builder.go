package defauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sainik-portal/defauth/jwt"
	"github.com/sainik-portal/defauth/notify"
	"github.com/sainik-portal/defauth/password"
	"github.com/sainik-portal/defauth/roles"
)

// Builder assembles an Engine. Chain the With* methods and finish with
// Build; a Builder is single-use.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	registry *roles.Registry

	accounts  AccountProvider
	sender    notify.Sender
	auditSink AuditSink
	log       *logrus.Logger

	built bool
}

// New returns a Builder preloaded with the default configuration and the
// built-in role policy table.
func New() *Builder {
	return &Builder{
		config:   defaultConfig(),
		registry: roles.Default(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing lockout counters, MFA challenges,
// and verification tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRegistry replaces the built-in role policy table.
func (b *Builder) WithRegistry(registry *roles.Registry) *Builder {
	b.registry = registry
	return b
}

// WithAccountProvider sets the caller's account repository binding.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithSender sets the delivery channel for one-time codes and verification
// links.
func (b *Builder) WithSender(s notify.Sender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's structured logger.
func (b *Builder) WithLogger(log *logrus.Logger) *Builder {
	b.log = log
	return b
}

// WithMetricsEnabled toggles counter recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every store, and returns the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.registry == nil {
		return nil, errors.New("role registry required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		registry: b.registry,
		accounts: b.accounts,
		sender:   b.sender,
		log:      b.log,
	}
	if engine.log == nil {
		engine.log = logrus.StandardLogger()
	}

	engine.lockout = newLockoutTracker(b.redis, cfg.Lockout)
	engine.challenges = newChallengeStore(b.redis)
	engine.verification = newEmailVerificationStore(b.redis)
	engine.totp = newTOTPManager(cfg.TOTP)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	jm, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		KeyID:         cfg.Session.KeyID,
		VerifyKeys:    cfg.Session.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
