package devicesync

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll results used as the "result" label.
const (
	pollOK      = "ok"
	pollError   = "error"
	pollSkipped = "skipped"
)

// Metrics holds the synchronizer's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	polls         *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	mutations     *prometheus.CounterVec
	rollbacks     prometheus.Counter
	pending       prometheus.Gauge
	devices       prometheus.Gauge
	notifications prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg skips registration, which is what tests want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashsync_polls_total",
			Help: "Fetch-all polls by result (ok, error, skipped).",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashsync_poll_duration_seconds",
			Help:    "Duration of completed fetch-all polls.",
			Buckets: prometheus.DefBuckets,
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashsync_mutations_total",
			Help: "User mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashsync_rollbacks_total",
			Help: "Optimistic writes reverted after a remote failure.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashsync_pending_mutations",
			Help: "Device ids currently masked by an optimistic write.",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashsync_devices",
			Help: "Devices in the reconciled view.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashsync_notifications_total",
			Help: "State change notifications delivered to subscribers.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.polls, m.pollDuration, m.mutations, m.rollbacks, m.pending, m.devices, m.notifications,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observePoll(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.polls.WithLabelValues(pollError).Inc()
		return
	}
	m.polls.WithLabelValues(pollOK).Inc()
	m.pollDuration.Observe(d.Seconds())
}

func (m *Metrics) pollSkipped() {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(pollSkipped).Inc()
}

func (m *Metrics) mutation(kind MutationKind, outcome Outcome) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(kind), string(outcome)).Inc()
	if outcome == OutcomeRolledBack {
		m.rollbacks.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) setDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

func (m *Metrics) notified() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}
