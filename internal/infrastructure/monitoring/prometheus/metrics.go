package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
)

// AppMetrics holds all application metrics. A nil *AppMetrics is valid and
// records nothing.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPRequestSize     HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Oracle Layer
	LLMRequestsTotal   CounterVec
	LLMRequestDuration HistogramVec

	// Terminology Layer
	TerminologyLookupsTotal   CounterVec
	TerminologyLookupDuration HistogramVec

	// Resolution Layer
	RatingsTotal       CounterVec
	ResolutionsTotal   CounterVec
	EscalationDepth    HistogramVec
	ExtractionsTotal   CounterVec
	ExtractedTerms     HistogramVec
	LinesProcessed     CounterVec
	EvaluationScore    GaugeVec
	EvaluationRowCount GaugeVec

	// Infrastructure Layer
	DBConnectionPoolSize   GaugeVec
	DBConnectionPoolActive GaugeVec
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	SinkWritesTotal        CounterVec
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec

	// System Health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultLLMDurationBuckets  = []float64{.25, .5, 1, 2, 5, 10, 30, 60, 120}
	DefaultSizeBuckets         = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultTermCountBuckets    = []float64{0, 1, 2, 3, 5, 8, 13, 21}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPRequestSize = collector.RegisterHistogram("http_request_size_bytes", "HTTP request size", DefaultSizeBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Oracle
	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "Oracle completions", "backend", "kind", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "Oracle completion latency", DefaultLLMDurationBuckets, "backend", "kind")

	// Terminology
	m.TerminologyLookupsTotal = collector.RegisterCounter("terminology_lookups_total", "Terminology lookups by outcome", "outcome")
	m.TerminologyLookupDuration = collector.RegisterHistogram("terminology_lookup_duration_seconds", "Terminology lookup latency", DefaultHTTPDurationBuckets, "outcome")

	// Resolution
	m.RatingsTotal = collector.RegisterCounter("ratings_total", "Candidate ratings", "rating", "source")
	m.ResolutionsTotal = collector.RegisterCounter("resolutions_total", "Term resolutions", "strategy", "status")
	m.EscalationDepth = collector.RegisterHistogram("escalation_depth", "Tiers attempted per term", []float64{1, 2, 3}, "status")
	m.ExtractionsTotal = collector.RegisterCounter("extractions_total", "Line extractions by outcome", "outcome")
	m.ExtractedTerms = collector.RegisterHistogram("extracted_terms", "Terms extracted per line", DefaultTermCountBuckets)
	m.LinesProcessed = collector.RegisterCounter("lines_processed_total", "Lines processed", "source")
	m.EvaluationScore = collector.RegisterGauge("evaluation_score", "Last evaluation score", "metric")
	m.EvaluationRowCount = collector.RegisterGauge("evaluation_rows", "Rows scored by the last evaluation", "kind")

	// Infrastructure
	m.DBConnectionPoolSize = collector.RegisterGauge("db_pool_size", "Database connection pool size", "db")
	m.DBConnectionPoolActive = collector.RegisterGauge("db_pool_active", "Database active connections", "db")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.SinkWritesTotal = collector.RegisterCounter("sink_writes_total", "Result sink writes", "sink", "status")
	m.MessagesTotal = collector.RegisterCounter("messages_total", "Queue messages handled", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Message processing duration", DefaultLLMDurationBuckets, "topic")

	// System Health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type", "severity")

	return m
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Resolver hooks. These make *AppMetrics satisfy the resolver's Metrics
// interface and the oracle's CompletionObserver.

func (m *AppMetrics) RecordLookup(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TerminologyLookupsTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.TerminologyLookupDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (m *AppMetrics) RecordRating(rating coding.Rating, oracleCalled bool) {
	if m == nil {
		return
	}
	source := "exact"
	if oracleCalled {
		source = "oracle"
	}
	m.RatingsTotal.WithLabelValues(strconv.Itoa(int(rating)), source).Inc()
}

func (m *AppMetrics) RecordResolution(res coding.Resolution) {
	if m == nil {
		return
	}
	st := "unresolved"
	if res.Resolved {
		st = "resolved"
	}
	m.ResolutionsTotal.WithLabelValues(res.Strategy.String(), st).Inc()
	m.EscalationDepth.WithLabelValues(st).Observe(float64(len(res.Trace)))
}

func (m *AppMetrics) RecordExtraction(outcome string, terms int) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(outcome).Inc()
	m.ExtractedTerms.WithLabelValues().Observe(float64(terms))
}

func (m *AppMetrics) ObserveCompletion(backend, kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(backend, kind, status(err)).Inc()
	m.LLMRequestDuration.WithLabelValues(backend, kind).Observe(elapsed.Seconds())
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	if metrics == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if reqSize >= 0 {
		metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	}
	if respSize >= 0 {
		metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error", "error").Inc()
	}
}

func RecordDBPool(metrics *AppMetrics, db string, open, inUse int) {
	if metrics == nil {
		return
	}
	metrics.DBConnectionPoolSize.WithLabelValues(db).Set(float64(open))
	metrics.DBConnectionPoolActive.WithLabelValues(db).Set(float64(inUse))
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if metrics == nil {
		return
	}
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordSinkWrite(metrics *AppMetrics, sink string, err error) {
	if metrics == nil {
		return
	}
	metrics.SinkWritesTotal.WithLabelValues(sink, status(err)).Inc()
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(sink, "write_error", "error").Inc()
	}
}

func RecordMessage(metrics *AppMetrics, topic string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	metrics.MessagesTotal.WithLabelValues(topic, status(err)).Inc()
	metrics.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func RecordLines(metrics *AppMetrics, source string, n int) {
	if metrics == nil {
		return
	}
	metrics.LinesProcessed.WithLabelValues(source).Add(float64(n))
}

func RecordEvaluation(metrics *AppMetrics, iou, precision float64, truthRows, predictionRows int) {
	if metrics == nil {
		return
	}
	metrics.EvaluationScore.WithLabelValues("iou").Set(iou)
	metrics.EvaluationScore.WithLabelValues("precision").Set(precision)
	metrics.EvaluationRowCount.WithLabelValues("truth").Set(float64(truthRows))
	metrics.EvaluationRowCount.WithLabelValues("prediction").Set(float64(predictionRows))
}

func RecordHealth(metrics *AppMetrics, component string, up bool) {
	if metrics == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func RecordError(metrics *AppMetrics, component, errorType, severity string) {
	if metrics == nil {
		return
	}
	metrics.ErrorsTotal.WithLabelValues(component, errorType, severity).Inc()
}
