package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for wacast
type Metrics struct {
	// Message counters
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec

	// Campaign lifecycle
	CampaignsStartedTotal   prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter
	CampaignsPausedTotal    prometheus.Counter
	CampaignsCancelledTotal prometheus.Counter
	DispatchActive          prometheus.Gauge

	// Quota
	QuotaDeniedTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wacast_messages_sent_total",
				Help: "Total number of messages accepted by the gateway",
			},
			[]string{"account"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wacast_messages_failed_total",
				Help: "Total number of messages the gateway rejected or that faulted in transit",
			},
			[]string{"account"},
		),
		CampaignsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wacast_campaigns_started_total",
			Help: "Total number of dispatch runs started",
		}),
		CampaignsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wacast_campaigns_completed_total",
			Help: "Total number of campaigns that reached completed",
		}),
		CampaignsPausedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wacast_campaigns_paused_total",
			Help: "Total number of dispatch runs stopped by a pause",
		}),
		CampaignsCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wacast_campaigns_cancelled_total",
			Help: "Total number of dispatch runs stopped by a cancel",
		}),
		DispatchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wacast_dispatch_active",
			Help: "Number of dispatch runs currently in flight",
		}),
		QuotaDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wacast_quota_denied_total",
				Help: "Total number of submissions denied by the daily quota",
			},
			[]string{"account"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wacast_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wacast_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.CampaignsStartedTotal,
		m.CampaignsCompletedTotal,
		m.CampaignsPausedTotal,
		m.CampaignsCancelledTotal,
		m.DispatchActive,
		m.QuotaDeniedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMessagesSent increments the sent message counter
func IncMessagesSent(account string, n int) {
	m := Global()
	if m != nil && n > 0 {
		m.MessagesSentTotal.WithLabelValues(account).Add(float64(n))
	}
}

// IncMessagesFailed increments the failed message counter
func IncMessagesFailed(account string, n int) {
	m := Global()
	if m != nil && n > 0 {
		m.MessagesFailedTotal.WithLabelValues(account).Add(float64(n))
	}
}

// IncQuotaDenied increments the quota denial counter
func IncQuotaDenied(account string) {
	m := Global()
	if m != nil {
		m.QuotaDeniedTotal.WithLabelValues(account).Inc()
	}
}

// DispatchStarted records a dispatch run entering flight
func DispatchStarted() {
	m := Global()
	if m != nil {
		m.CampaignsStartedTotal.Inc()
		m.DispatchActive.Inc()
	}
}

// DispatchFinished records a dispatch run leaving flight
func DispatchFinished(outcome string) {
	m := Global()
	if m == nil {
		return
	}
	m.DispatchActive.Dec()
	switch outcome {
	case "completed":
		m.CampaignsCompletedTotal.Inc()
	case "paused":
		m.CampaignsPausedTotal.Inc()
	case "cancelled":
		m.CampaignsCancelledTotal.Inc()
	}
}

// ObserveAPIRequest records one API request
func ObserveAPIRequest(method, path, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(method, path).Observe(seconds)
	}
}
