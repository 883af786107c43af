package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Buckets must be ascending.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter. Negative values are ignored.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	// counts are per-bucket; cumulative sums are computed on write.
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records the time elapsed since start in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}

	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w io.Writer, name, metricType, help string, labels map[string]string, value float64) {
	io.WriteString(w, "# HELP "+name+" "+help+"\n")
	io.WriteString(w, "# TYPE "+name+" "+metricType+"\n")
	io.WriteString(w, name+formatLabels(labels)+" "+formatFloat(value)+"\n")
}

func writeHistogram(w io.Writer, h *Histogram) {
	io.WriteString(w, "# HELP "+h.name+" "+h.help+"\n")
	io.WriteString(w, "# TYPE "+h.name+" histogram\n")

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+strconv.FormatUint(cumulative, 10)+"\n")
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+strconv.FormatUint(h.count, 10)+"\n")

	io.WriteString(w, h.name+"_sum"+formatLabels(h.labels)+" "+formatFloat(h.sum)+"\n")
	io.WriteString(w, h.name+"_count"+formatLabels(h.labels)+" "+strconv.FormatUint(h.count, 10)+"\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range sortedKeys(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strconv.Quote(labels[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RecallMetrics contains the service metrics.
type RecallMetrics struct {
	Registry *MetricsRegistry

	// Index
	IndexSize          *Gauge
	IndexDimension     *Gauge
	IndexReady         *Gauge
	IndexBuildsTotal   *Counter
	IndexBuildFailures *Counter
	IndexBuildDuration *Histogram

	// Search
	SearchRequestsTotal *Counter
	SearchErrorsTotal   *Counter
	SearchDuration      *Histogram
	SearchResultsTotal  *Counter

	// Embedding
	EmbedRequestsTotal *Counter
	EmbedErrorsTotal   *Counter
	EmbedDuration      *Histogram

	// External jobs
	JobPollsTotal *Counter
}

// NewRecallMetrics creates the recall metric set on a fresh registry.
func NewRecallMetrics() *RecallMetrics {
	r := NewMetricsRegistry()

	return &RecallMetrics{
		Registry: r,

		IndexSize:          r.NewGauge("recall_index_records", "Records in the serving snapshot", nil),
		IndexDimension:     r.NewGauge("recall_index_dimension", "Vector dimension of the serving snapshot", nil),
		IndexReady:         r.NewGauge("recall_index_ready", "1 when a snapshot is being served", nil),
		IndexBuildsTotal:   r.NewCounter("recall_index_builds_total", "Successful index builds", nil),
		IndexBuildFailures: r.NewCounter("recall_index_build_failures_total", "Failed index build attempts", nil),
		IndexBuildDuration: r.NewHistogram("recall_index_build_duration_seconds", "Index build duration", nil, nil),

		SearchRequestsTotal: r.NewCounter("recall_search_requests_total", "Similarity queries served", nil),
		SearchErrorsTotal:   r.NewCounter("recall_search_errors_total", "Similarity queries that failed", nil),
		SearchDuration:      r.NewHistogram("recall_search_duration_seconds", "Similarity query latency", nil, nil),
		SearchResultsTotal:  r.NewCounter("recall_search_results_total", "Results returned across all queries", nil),

		EmbedRequestsTotal: r.NewCounter("recall_embed_requests_total", "Embedding provider calls", nil),
		EmbedErrorsTotal:   r.NewCounter("recall_embed_errors_total", "Embedding provider failures", nil),
		EmbedDuration:      r.NewHistogram("recall_embed_duration_seconds", "Embedding provider latency", nil, nil),

		JobPollsTotal: r.NewCounter("recall_job_polls_total", "External job status polls", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *RecallMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordBuild records an index build attempt.
func (m *RecallMetrics) RecordBuild(duration time.Duration, size, dimension int, err error) {
	m.IndexBuildDuration.Observe(duration.Seconds())
	if err != nil {
		m.IndexBuildFailures.Inc()
		return
	}
	m.IndexBuildsTotal.Inc()
	m.IndexSize.Set(float64(size))
	m.IndexDimension.Set(float64(dimension))
	m.IndexReady.Set(1)
}

// RecordSearch records a similarity query.
func (m *RecallMetrics) RecordSearch(duration time.Duration, results int, err error) {
	m.SearchRequestsTotal.Inc()
	m.SearchDuration.Observe(duration.Seconds())
	if err != nil {
		m.SearchErrorsTotal.Inc()
		return
	}
	m.SearchResultsTotal.Add(float64(results))
}

// RecordEmbed records an embedding provider call.
func (m *RecallMetrics) RecordEmbed(duration time.Duration, err error) {
	m.EmbedRequestsTotal.Inc()
	m.EmbedDuration.Observe(duration.Seconds())
	if err != nil {
		m.EmbedErrorsTotal.Inc()
	}
}

var globalMetrics *RecallMetrics
var metricsOnce sync.Once

// Metrics returns the process-wide metrics instance.
func Metrics() *RecallMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewRecallMetrics()
	})
	return globalMetrics
}
