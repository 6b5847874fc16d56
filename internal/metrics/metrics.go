// Package metrics exposes the process-wide Prometheus counters and
// histograms for rows emitted, fetch errors, and bytes read across all
// tables, plus a small recent-errors ring for the admin endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RowsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webtab_rows_emitted_total",
		Help: "Total rows produced by the transcoder, labeled by table.",
	}, []string{"table"})

	FetchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webtab_fetch_errors_total",
		Help: "Total fatal fetch errors, labeled by table and phase.",
	}, []string{"table", "phase"})

	BytesReadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webtab_bytes_read_total",
		Help: "Total raw response bytes read from the socket, labeled by table.",
	}, []string{"table"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webtab_queue_depth",
		Help: "Number of buffers currently queued between the fetch worker and the cursor.",
	}, []string{"table"})

	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webtab_fetch_duration_seconds",
		Help:    "Wall-clock time from worker start to EOF or fatal error.",
		Buckets: prometheus.DefBuckets,
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(RowsEmittedTotal, FetchErrorsTotal, BytesReadTotal, QueueDepth, FetchDuration)
}

// ErrorEvent is one entry in the recent-fetch-errors ring the admin
// endpoint reports for operator triage.
type ErrorEvent struct {
	Table   string
	FetchID string
	URL     string
	Phase   string
	Message string
	At      time.Time
}

// ErrorRing is a fixed-capacity ring of fetch errors, kept in arrival
// order (oldest first). Adapted from the teacher's TTL+LRU query cache shape
// (src/core/query_cache.go): here entries never expire on their own,
// they just fall off the back once the ring is full, since admins want
// "last N failures," not a time-bounded cache.
type ErrorRing struct {
	mu       sync.Mutex
	entries  []ErrorEvent
	capacity int
}

// NewErrorRing returns a ring holding at most capacity entries.
func NewErrorRing(capacity int) *ErrorRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &ErrorRing{capacity: capacity}
}

// Record appends ev, evicting the oldest entry if the ring is full.
func (r *ErrorRing) Record(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, ev)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// Recent returns a copy of the ring's current contents, oldest first.
func (r *ErrorRing) Recent() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEvent, len(r.entries))
	copy(out, r.entries)
	return out
}
