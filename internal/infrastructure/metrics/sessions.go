package metrics

import "github.com/prometheus/client_golang/prometheus"

// Tier labels.
const (
	TierCache    = "redis"
	TierDatabase = "postgres"
)

// Sessions collects counters for the hybrid session store. A nil *Sessions is a no-op.
type Sessions struct {
	TierErrors  *prometheus.CounterVec
	CacheFills  prometheus.Counter
	Reconciled  *prometheus.CounterVec
	BufferedOps *prometheus.CounterVec
	Replayed    *prometheus.CounterVec
	BufferDepth prometheus.Gauge
	TierUp      *prometheus.GaugeVec
}

// NewSessions builds the session collectors and registers them on reg.
func NewSessions(reg prometheus.Registerer) *Sessions {
	m := &Sessions{
		TierErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_tier_errors_total",
				Help: "Total number of failed session store calls by tier and operation.",
			},
			[]string{"tier", "operation"},
		),
		CacheFills: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_cache_fills_total",
				Help: "Total number of sessions written back to the cache after a cache miss.",
			},
		),
		Reconciled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_reconciled_total",
				Help: "Total number of expired cached sessions handled by reconciliation.",
			},
			[]string{"result"},
		),
		BufferedOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_buffered_operations_total",
				Help: "Total number of database writes deferred to the operation buffer.",
			},
			[]string{"operation"},
		),
		Replayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_buffer_replayed_total",
				Help: "Total number of buffered writes replayed against the database by result.",
			},
			[]string{"operation", "result"},
		),
		BufferDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_buffer_depth",
				Help: "Number of database writes waiting in the operation buffer.",
			},
		),
		TierUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sessions_tier_up",
				Help: "Whether the last health probe of a storage tier succeeded (1) or failed (0).",
			},
			[]string{"tier"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.TierErrors, m.CacheFills, m.Reconciled, m.BufferedOps, m.Replayed, m.BufferDepth, m.TierUp)
	}
	return m
}

func (m *Sessions) TierError(tier, operation string) {
	if m == nil {
		return
	}
	m.TierErrors.WithLabelValues(tier, operation).Inc()
}

func (m *Sessions) CacheFill() {
	if m == nil {
		return
	}
	m.CacheFills.Inc()
}

func (m *Sessions) Reconcile(result string) {
	if m == nil {
		return
	}
	m.Reconciled.WithLabelValues(result).Inc()
}

func (m *Sessions) Buffered(operation string) {
	if m == nil {
		return
	}
	m.BufferedOps.WithLabelValues(operation).Inc()
}

func (m *Sessions) Replay(operation, result string) {
	if m == nil {
		return
	}
	m.Replayed.WithLabelValues(operation, result).Inc()
}

// Health records the outcome of a tier probe.
func (m *Sessions) Health(tier string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.TierUp.WithLabelValues(tier).Set(v)
}

func (m *Sessions) Depth(n int) {
	if m == nil {
		return
	}
	m.BufferDepth.Set(float64(n))
}
