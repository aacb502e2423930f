package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "baitwatch"

// IngestMetrics holds all Prometheus metrics for the ingest worker and the
// classifier.
type IngestMetrics struct {
	LinesTotal        *prometheus.CounterVec
	EventsPersisted   prometheus.Counter
	EventsDropped     prometheus.Counter
	WriteRetries      prometheus.Counter
	DeadLettered      prometheus.Counter
	CursorFlushes     prometheus.Counter
	CursorOffset      prometheus.Gauge
	Rotations         prometheus.Counter
	IngestState       *prometheus.GaugeVec
	Classifications   *prometheus.CounterVec
	ClassifyCacheHits prometheus.Counter
	ClassifyCacheMiss prometheus.Counter
}

// NewIngestMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	f := promauto.With(reg)
	return &IngestMetrics{
		LinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Total number of log lines read, by result.",
		}, []string{"result"}), // result: parsed, malformed
		EventsPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_persisted_total",
			Help:      "Total number of raw traffic events durably written.",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped after exhausting write retries.",
		}),
		WriteRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_retries_total",
			Help:      "Total number of retried event writes.",
		}),
		DeadLettered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "dead_lettered_total",
			Help:      "Total number of dropped events spooled to the dead-letter log.",
		}),
		CursorFlushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "cursor_flushes_total",
			Help:      "Total number of cursor checkpoints persisted.",
		}),
		CursorOffset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "cursor_offset_bytes",
			Help:      "Byte offset of the last persisted cursor.",
		}),
		Rotations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rotations_total",
			Help:      "Total number of detected log rotations or truncations.",
		}),
		IngestState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "state",
			Help:      "Current ingestor state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Total number of classifications computed, by threat level.",
		}, []string{"threat_level"}),
		ClassifyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "cache_hits_total",
			Help:      "Total number of classification cache hits.",
		}),
		ClassifyCacheMiss: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "cache_misses_total",
			Help:      "Total number of classification cache misses.",
		}),
	}
}
