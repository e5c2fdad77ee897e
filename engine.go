package defauth

import (
	"github.com/sirupsen/logrus"

	"github.com/sainik-portal/defauth/jwt"
	"github.com/sainik-portal/defauth/notify"
	"github.com/sainik-portal/defauth/password"
	"github.com/sainik-portal/defauth/roles"
)

// Engine is the role-aware credential and MFA policy engine. Construct it
// with the Builder; all fields are immutable after Build and every method
// is safe for concurrent use.
type Engine struct {
	config       Config
	registry     *roles.Registry
	accounts     AccountProvider
	hasher       *password.Hasher
	jwtManager   *jwt.Manager
	lockout      *lockoutTracker
	challenges   *challengeStore
	verification *emailVerificationStore
	totp         *totpManager
	sender       notify.Sender
	audit        *auditDispatcher
	metrics      *Metrics
	log          *logrus.Logger
}

// Registry exposes the role policy table the engine was built with.
func (e *Engine) Registry() *roles.Registry {
	return e.registry
}

// Close drains and stops the audit dispatcher. The Engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, err error) {
	if e == nil || e.log == nil {
		return
	}
	e.log.WithError(err).Warn(msg)
}
