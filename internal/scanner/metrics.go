package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Patch outcome label values.
const (
	outcomeResumed = "resumed"
	outcomeSparse  = "sparse"
	outcomeScored  = "scored"
	outcomeFailed  = "failed"
)

// Metrics contains Prometheus metrics for a scan. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	patchesTotal         *prometheus.CounterVec
	detectionsTotal      prometheus.Counter
	fetchDurationSeconds prometheus.Histogram
	starsPerPatch        prometheus.Histogram
	detectionScore       prometheus.Histogram
	ledgerSize           prometheus.Gauge
}

// NewMetrics creates and registers scan metrics.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.patchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterscan_patches_total",
			Help: "Total number of patches visited by outcome",
		},
		[]string{"outcome"}, // outcome: resumed, sparse, scored, failed
	)

	m.detectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clusterscan_detections_total",
		Help: "Total number of detections written",
	})

	m.fetchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterscan_fetch_duration_seconds",
		Help:    "Time taken to fetch one patch from the archive",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
	})

	m.starsPerPatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterscan_stars_per_patch",
		Help:    "Number of observations returned per fetched patch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1 to ~262k
	})

	m.detectionScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterscan_detection_score",
		Help:    "Fraction of clustered observations per scored patch",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	m.ledgerSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clusterscan_ledger_size",
		Help: "Number of patches committed to the progress ledger",
	})
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.patchesTotal.Describe(ch)
	m.detectionsTotal.Describe(ch)
	m.fetchDurationSeconds.Describe(ch)
	m.starsPerPatch.Describe(ch)
	m.detectionScore.Describe(ch)
	m.ledgerSize.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.patchesTotal.Collect(ch)
	m.detectionsTotal.Collect(ch)
	m.fetchDurationSeconds.Collect(ch)
	m.starsPerPatch.Collect(ch)
	m.detectionScore.Collect(ch)
	m.ledgerSize.Collect(ch)
}

// Registry returns the registry the metrics were registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) recordPatch(outcome string) {
	if m == nil {
		return
	}
	m.patchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordFetch(seconds float64, stars int) {
	if m == nil {
		return
	}
	m.fetchDurationSeconds.Observe(seconds)
	m.starsPerPatch.Observe(float64(stars))
}

func (m *Metrics) recordScore(score float64, detection bool) {
	if m == nil {
		return
	}
	m.detectionScore.Observe(score)
	if detection {
		m.detectionsTotal.Inc()
	}
}

func (m *Metrics) setLedgerSize(n int) {
	if m == nil {
		return
	}
	m.ledgerSize.Set(float64(n))
}
