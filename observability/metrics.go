package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auxrewards"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	kpiRewardOnce sync.Once
	kpiRewardReg  *KPIRewardMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = labelOrUnknown(module)
	method = labelOrUnknown(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(labelOrUnknown(module), reason).Inc()
}

// KPIRewardMetrics wraps collectors tracking the issuance engine.
type KPIRewardMetrics struct {
	claims        *prometheus.CounterVec
	claimLatency  prometheus.Histogram
	minted        prometheus.Counter
	burned        prometheus.Counter
	net           prometheus.Counter
	partials      *prometheus.CounterVec
	reconciled    prometheus.Counter
	pauseEngaged  prometheus.Gauge
	replayEntries prometheus.Gauge
}

// KPIReward exposes the metrics registry for the issuance engine.
func KPIReward() *KPIRewardMetrics {
	kpiRewardOnce.Do(func() {
		kpiRewardReg = &KPIRewardMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "claims_total",
				Help:      "Count of processed claims segmented by outcome code.",
			}, []string{"outcome"}),
			claimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "claim_duration_seconds",
				Help:      "Latency distribution for claim processing.",
				Buckets:   prometheus.DefBuckets,
			}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "minted_total",
				Help:      "Gross reward units minted to founders.",
			}),
			burned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "burned_total",
				Help:      "Reward units retired by the issuance burn.",
			}),
			net: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "distributed_total",
				Help:      "Net reward units distributed after burn.",
			}),
			partials: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "partial_issuance_total",
				Help:      "Claims that minted tokens but did not complete, segmented by stage.",
			}, []string{"stage"}),
			reconciled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "reconciled_total",
				Help:      "Partial issuances completed by reconciliation.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "pause_engaged",
				Help:      "Indicates whether the issuance pause guard is active (1) or not (0).",
			}),
			replayEntries: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "kpireward",
				Name:      "replay_cache_entries",
				Help:      "Digests currently held by the replay cache.",
			}),
		}
		prometheus.MustRegister(
			kpiRewardReg.claims,
			kpiRewardReg.claimLatency,
			kpiRewardReg.minted,
			kpiRewardReg.burned,
			kpiRewardReg.net,
			kpiRewardReg.partials,
			kpiRewardReg.reconciled,
			kpiRewardReg.pauseEngaged,
			kpiRewardReg.replayEntries,
		)
	})
	return kpiRewardReg
}

// ObserveClaim records the outcome code and latency of a claim.
func (m *KPIRewardMetrics) ObserveClaim(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(labelOrUnknown(outcome)).Inc()
	m.claimLatency.Observe(d.Seconds())
}

// RecordIssuance adds a completed issuance to the supply counters.
func (m *KPIRewardMetrics) RecordIssuance(amount, burned uint64) {
	if m == nil {
		return
	}
	m.minted.Add(float64(amount))
	m.burned.Add(float64(burned))
	if amount >= burned {
		m.net.Add(float64(amount - burned))
	}
}

func (m *KPIRewardMetrics) RecordPartial(stage string) {
	if m == nil {
		return
	}
	m.partials.WithLabelValues(labelOrUnknown(stage)).Inc()
}

func (m *KPIRewardMetrics) RecordReconciled() {
	if m == nil {
		return
	}
	m.reconciled.Inc()
}

// SetPause toggles the pause_engaged gauge.
func (m *KPIRewardMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func (m *KPIRewardMetrics) SetReplayEntries(n int) {
	if m == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	m.replayEntries.Set(float64(n))
}

func labelOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
