// Package metrics provides Prometheus metrics for idtree
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "idtree"

// Insert results
const (
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

// Metrics holds all Prometheus metrics for one open tree
type Metrics struct {
	// Insert metrics
	InsertsTotal   *prometheus.CounterVec
	InsertDuration prometheus.Histogram
	SplitsTotal    *prometheus.CounterVec

	// WAL metrics
	WALBatchesTotal      prometheus.Counter
	WALBytesTotal        prometheus.Counter
	ReplayedBatchesTotal prometheus.Counter
	TornBytesTotal       prometheus.Counter

	// Checkpoint metrics
	CheckpointsTotal   prometheus.Counter
	CheckpointDuration prometheus.Histogram

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec
	CachePages        *prometheus.GaugeVec

	// Tree shape
	TreePages prometheus.Gauge

	reg        prometheus.Registerer
	collectors []prometheus.Collector
}

// New creates the metrics and registers them on reg. A nil reg leaves them
// unregistered, which keeps them usable without exporting anything.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{reg: reg}

	// Insert metrics
	m.InsertsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_total",
			Help:      "Total number of keys submitted for insertion by result",
		},
		[]string{"result"},
	)

	m.InsertDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insert_duration_seconds",
			Help:      "Duration of insert calls including the WAL append",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	m.SplitsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_splits_total",
			Help:      "Total number of node splits by node kind",
		},
		[]string{"kind"},
	)

	// WAL metrics
	m.WALBatchesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_batches_total",
			Help:      "Total number of committed WAL batches",
		},
	)

	m.WALBytesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_bytes_total",
			Help:      "Total number of bytes appended to the WAL",
		},
	)

	m.ReplayedBatchesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_replayed_batches_total",
			Help:      "Total number of WAL batches applied to the data file",
		},
	)

	m.TornBytesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_torn_bytes_total",
			Help:      "Total number of WAL tail bytes discarded as torn or corrupt",
		},
	)

	// Checkpoint metrics
	m.CheckpointsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of WAL checkpoints",
		},
	)

	m.CheckpointDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of WAL checkpoints in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Cache metrics
	m.CacheLookupsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of page cache lookups by result",
		},
		[]string{"result"},
	)

	m.CachePages = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_pages",
			Help:      "Pages held by the page cache by state",
		},
		[]string{"state"},
	)

	m.TreePages = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages",
			Help:      "Page offsets handed out so far, header included",
		},
	)

	m.collectors = []prometheus.Collector{
		m.InsertsTotal, m.InsertDuration, m.SplitsTotal,
		m.WALBatchesTotal, m.WALBytesTotal, m.ReplayedBatchesTotal, m.TornBytesTotal,
		m.CheckpointsTotal, m.CheckpointDuration,
		m.CacheLookupsTotal, m.CachePages,
		m.TreePages,
	}
	return m
}

// Unregister removes every collector from the registerer New was given, so
// a tree reopened on the same registry can register again.
func (m *Metrics) Unregister() {
	if m.reg == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
	m.reg = nil
}

// RecordInsert records one insert call covering inserted new keys and
// duplicates already present
func (m *Metrics) RecordInsert(inserted, duplicates, leafSplits, internalSplits int, duration time.Duration) {
	m.InsertsTotal.WithLabelValues(ResultInserted).Add(float64(inserted))
	m.InsertsTotal.WithLabelValues(ResultDuplicate).Add(float64(duplicates))
	m.InsertDuration.Observe(duration.Seconds())
	if leafSplits > 0 {
		m.SplitsTotal.WithLabelValues("leaf").Add(float64(leafSplits))
	}
	if internalSplits > 0 {
		m.SplitsTotal.WithLabelValues("internal").Add(float64(internalSplits))
	}
}

// RecordInsertError records a failed insert call of n keys
func (m *Metrics) RecordInsertError(n int, duration time.Duration) {
	m.InsertsTotal.WithLabelValues(ResultError).Add(float64(n))
	m.InsertDuration.Observe(duration.Seconds())
}

// RecordWALAppend records one committed batch of n bytes
func (m *Metrics) RecordWALAppend(n int64) {
	m.WALBatchesTotal.Inc()
	m.WALBytesTotal.Add(float64(n))
}

// RecordReplay records a WAL flush into the data file
func (m *Metrics) RecordReplay(batches int, tornBytes int64) {
	m.ReplayedBatchesTotal.Add(float64(batches))
	m.TornBytesTotal.Add(float64(tornBytes))
}

// RecordCheckpoint records a completed checkpoint
func (m *Metrics) RecordCheckpoint(duration time.Duration) {
	m.CheckpointsTotal.Inc()
	m.CheckpointDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a page cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// UpdateCache updates page cache occupancy
func (m *Metrics) UpdateCache(clean, dirty int) {
	m.CachePages.WithLabelValues("clean").Set(float64(clean))
	m.CachePages.WithLabelValues("dirty").Set(float64(dirty))
}

// UpdateTree updates tree shape gauges
func (m *Metrics) UpdateTree(nextPageOffset uint32) {
	m.TreePages.Set(float64(nextPageOffset))
}
