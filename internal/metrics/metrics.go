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

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	CampaignsProcessedTotal *prometheus.CounterVec
	DomainsBlockedTotal     prometheus.Counter
	DomainsEvictedTotal     prometheus.Counter
	DomainsRejectedTotal    prometheus.Counter
	RotationsTotal          prometheus.Counter
	LockContentionTotal     prometheus.Counter
	ReportFetchesTotal      *prometheus.CounterVec
	BatchesTotal            *prometheus.CounterVec
	BatchDurationSeconds    prometheus.Histogram
	PendingReportsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CampaignsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsya_campaigns_processed_total",
				Help: "Campaigns processed by outcome",
			},
			[]string{"status"},
		),
		DomainsBlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsya_domains_blocked_total",
			Help: "Domains written into exclusion lists",
		}),
		DomainsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsya_domains_evicted_total",
			Help: "Domains removed from exclusion lists by rotation",
		}),
		DomainsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsya_domains_rejected_total",
			Help: "Candidate domains dropped by validation",
		}),
		RotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsya_rotations_total",
			Help: "Exclusion list rotations performed",
		}),
		LockContentionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsya_lock_contention_total",
			Help: "Campaigns skipped because another worker held the lock",
		}),
		ReportFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsya_report_fetches_total",
				Help: "Report requests by result",
			},
			[]string{"result"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsya_batches_total",
				Help: "Batches finished by status",
			},
			[]string{"status"},
		),
		BatchDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsya_batch_duration_seconds",
			Help:    "Wall clock time spent on one batch",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		PendingReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rsya_pending_reports_total",
				Help: "Pending report poll outcomes",
			},
			[]string{"result"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CampaignsProcessedTotal,
		m.DomainsBlockedTotal,
		m.DomainsEvictedTotal,
		m.DomainsRejectedTotal,
		m.RotationsTotal,
		m.LockContentionTotal,
		m.ReportFetchesTotal,
		m.BatchesTotal,
		m.BatchDurationSeconds,
		m.PendingReportsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

func IncCampaign(status string) {
	if m := Global(); m != nil {
		m.CampaignsProcessedTotal.WithLabelValues(status).Inc()
	}
}

func AddBlocked(n int) {
	if m := Global(); m != nil && n > 0 {
		m.DomainsBlockedTotal.Add(float64(n))
	}
}

func AddRejected(n int) {
	if m := Global(); m != nil && n > 0 {
		m.DomainsRejectedTotal.Add(float64(n))
	}
}

// IncRotation records one rotation that evicted n domains
func IncRotation(n int) {
	if m := Global(); m != nil {
		m.RotationsTotal.Inc()
		m.DomainsEvictedTotal.Add(float64(n))
	}
}

func IncLockContention() {
	if m := Global(); m != nil {
		m.LockContentionTotal.Inc()
	}
}

func IncReportFetch(result string) {
	if m := Global(); m != nil {
		m.ReportFetchesTotal.WithLabelValues(result).Inc()
	}
}

func ObserveBatch(status string, seconds float64) {
	if m := Global(); m != nil {
		m.BatchesTotal.WithLabelValues(status).Inc()
		m.BatchDurationSeconds.Observe(seconds)
	}
}

func IncPendingReport(result string) {
	if m := Global(); m != nil {
		m.PendingReportsTotal.WithLabelValues(result).Inc()
	}
}
