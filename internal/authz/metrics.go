package authz

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the authorization collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics holds the Prometheus collectors for decisions and index maintenance.
type Metrics struct {
	Decisions       *prometheus.CounterVec
	Rebuilds        *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	Entries         prometheus.Gauge
	ConditionErrors *prometheus.CounterVec
}

// NewMetrics constructs and registers the collectors. Collectors already registered
// under the same name are reused.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "abac"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Access decisions partitioned by outcome.",
		}, []string{"decision"}),
		Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_rebuilds_total",
			Help:      "Policy index rebuilds partitioned by result.",
		}, []string{"result"}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Time spent loading and publishing a policy index snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_entries",
			Help:      "Number of policy entries in the published snapshot.",
		}),
		ConditionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "condition_errors_total",
			Help:      "Condition evaluations that failed closed, partitioned by reason.",
		}, []string{"reason"}),
	}

	var err error
	if m.Decisions, err = register(reg, m.Decisions); err != nil {
		return nil, err
	}
	if m.Rebuilds, err = register(reg, m.Rebuilds); err != nil {
		return nil, err
	}
	if m.RebuildDuration, err = register(reg, m.RebuildDuration); err != nil {
		return nil, err
	}
	if m.Entries, err = register(reg, m.Entries); err != nil {
		return nil, err
	}
	if m.ConditionErrors, err = register(reg, m.ConditionErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) observeDecision(d Decision) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) observeRebuild(ok bool, seconds float64, entries int) {
	if m == nil {
		return
	}
	if !ok {
		m.Rebuilds.WithLabelValues("error").Inc()
		return
	}
	m.Rebuilds.WithLabelValues("ok").Inc()
	m.RebuildDuration.Observe(seconds)
	m.Entries.Set(float64(entries))
}

func (m *Metrics) observeEntries(entries int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(entries))
}

func (m *Metrics) observeConditionError(err error) {
	if m == nil {
		return
	}
	reason := "invalid"
	switch {
	case errors.Is(err, ErrTypeMismatch):
		reason = "type_mismatch"
	case errors.Is(err, ErrUnresolvedAttribute):
		reason = "unresolved_attribute"
	case errors.Is(err, ErrUnsupportedOperation):
		reason = "unsupported_operation"
	}
	m.ConditionErrors.WithLabelValues(reason).Inc()
}
