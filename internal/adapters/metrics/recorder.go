package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/trebuchet-org/treb-state/internal/domain"
)

// Operation groups store calls by the latency they contribute to
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
	OpQuery Operation = "query"
)

var operations = []Operation{OpRead, OpWrite, OpQuery}

type collectors struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

func newCollectors() *collectors {
	return &collectors{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treb_state",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution of state store operations by backend and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treb_state",
			Name:      "operation_errors_total",
			Help:      "Total failed state store operations by backend and operation.",
		}, []string{"backend", "op"}),
	}
}

var (
	registered   = map[prometheus.Registerer]*collectors{}
	registeredMu sync.Mutex
)

// collectorsFor shares one set of collectors per registerer so several stores
// can report into the same registry.
func collectorsFor(reg prometheus.Registerer) *collectors {
	if reg == nil {
		return newCollectors()
	}
	registeredMu.Lock()
	defer registeredMu.Unlock()
	if c, ok := registered[reg]; ok {
		return c
	}
	c := newCollectors()
	reg.MustRegister(c.latency, c.errors)
	registered[reg] = c
	return c
}

// Recorder tracks latency and error counts for one store. Its snapshot is read
// back from the prometheus series, so recorders of the same backend on one
// registry report together. A nil Recorder records nothing.
type Recorder struct {
	backend string
	c       *collectors
}

// NewRecorder creates a recorder for a backend. Collectors are registered on
// reg when it is non-nil.
func NewRecorder(backend string, reg prometheus.Registerer) *Recorder {
	return &Recorder{
		backend: backend,
		c:       collectorsFor(reg),
	}
}

// Observe records one completed operation
func (r *Recorder) Observe(op Operation, started time.Time, err error) {
	if r == nil {
		return
	}
	r.c.latency.WithLabelValues(r.backend, string(op)).Observe(time.Since(started).Seconds())
	if err != nil {
		r.c.errors.WithLabelValues(r.backend, string(op)).Inc()
	}
}

// Track is Observe in defer form:
//
//	defer r.Track(metrics.OpRead, time.Now(), &err)
func (r *Recorder) Track(op Operation, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	r.Observe(op, started, err)
}

type series struct {
	count    uint64
	seconds  float64
	failures uint64
}

func (s series) millis() float64 {
	if s.count == 0 {
		return 0
	}
	return s.seconds * 1000 / float64(s.count)
}

// read collects the histogram and error counter of one operation
func (r *Recorder) read(op Operation) series {
	var out series

	var m dto.Metric
	if h, err := r.c.latency.GetMetricWithLabelValues(r.backend, string(op)); err == nil {
		if metric, ok := h.(prometheus.Metric); ok && metric.Write(&m) == nil {
			out.count = m.GetHistogram().GetSampleCount()
			out.seconds = m.GetHistogram().GetSampleSum()
		}
	}

	m.Reset()
	if c, err := r.c.errors.GetMetricWithLabelValues(r.backend, string(op)); err == nil && c.Write(&m) == nil {
		out.failures = uint64(m.GetCounter().GetValue())
	}
	return out
}

// Snapshot returns mean latencies and the error rate. CacheHitRate is left
// for the store to fill in.
func (r *Recorder) Snapshot() domain.StoreMetrics {
	if r == nil {
		return domain.StoreMetrics{}
	}
	byOp := make(map[Operation]series, len(operations))
	var total, failures uint64
	for _, op := range operations {
		s := r.read(op)
		byOp[op] = s
		total += s.count
		failures += s.failures
	}

	m := domain.StoreMetrics{
		ReadLatency:  byOp[OpRead].millis(),
		WriteLatency: byOp[OpWrite].millis(),
		QueryLatency: byOp[OpQuery].millis(),
	}
	if total > 0 {
		m.ErrorRate = float64(failures) / float64(total)
	}
	return m
}

// Counts returns the number of observed operations and failures
func (r *Recorder) Counts() (total, failures uint64) {
	if r == nil {
		return 0, 0
	}
	for _, op := range operations {
		s := r.read(op)
		total += s.count
		failures += s.failures
	}
	return total, failures
}
