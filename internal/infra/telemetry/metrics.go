package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "posauth"

// AuthMetrics holds the Prometheus collectors for authentication outcomes.
type AuthMetrics struct {
	LoginAttempts    *prometheus.CounterVec
	Lockouts         prometheus.Counter
	TokensIssued     *prometheus.CounterVec
	TokensRevoked    *prometheus.CounterVec
	AuditDropped     prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
}

// NewAuthMetrics registers the authentication collectors, reusing any that are already registered.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	loginAttempts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Accounts locked after reaching the failure threshold.",
	}))
	if err != nil {
		return nil, err
	}

	issued, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Session tokens issued partitioned by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	revoked, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_revoked_total",
		Help:      "Session tokens revoked partitioned by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	dropped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_dropped_total",
		Help: "Audit events discarded because the dispatch buffer was full.",
	}))
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_delivery_failures_total",
		Help: "Audit events that a delivery target failed to accept.",
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		LoginAttempts:    loginAttempts,
		Lockouts:         lockouts,
		TokensIssued:     issued,
		TokensRevoked:    revoked,
		AuditDropped:     dropped,
		DeliveryFailures: failures,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// ObserveLogin counts a login attempt by outcome.
func (m *AuthMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveLockout counts a transition into the locked state.
func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// ObserveTokenIssued counts an issued token.
func (m *AuthMetrics) ObserveTokenIssued(reason string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(reason).Inc()
}

// ObserveTokensRevoked adds count revoked tokens under reason.
func (m *AuthMetrics) ObserveTokensRevoked(reason string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.TokensRevoked.WithLabelValues(reason).Add(float64(count))
}

// ObserveAuditDropped counts an audit event discarded under backpressure.
func (m *AuthMetrics) ObserveAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// ObserveAuditDeliveryFailure counts a failed delivery to target.
func (m *AuthMetrics) ObserveAuditDeliveryFailure(target string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(target).Inc()
}
