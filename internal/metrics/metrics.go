// Package metrics provides Prometheus metrics for msgstore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for msgstore
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	DbMessagesTotal     prometheus.Gauge

	// Query compilation metrics
	QueriesCompiledTotal prometheus.Counter
	QueryErrorsTotal     *prometheus.CounterVec

	// Message lifecycle metrics
	MessagesCreatedTotal prometheus.Counter
	MessagesUpdatedTotal prometheus.Counter
	MessagesDeletedTotal prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.GaugeFunc
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// HTTP request metrics
	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msgstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "msgstore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msgstore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "msgstore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Database metrics
	m.DbOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msgstore_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.DbMessagesTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "msgstore_db_messages_total",
			Help: "Total number of messages in the database",
		},
	)

	// Query compilation metrics
	m.QueriesCompiledTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "msgstore_queries_compiled_total",
			Help: "Total number of query strings compiled successfully",
		},
	)

	m.QueryErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_query_errors_total",
			Help: "Total number of rejected requests by error kind",
		},
		[]string{"kind"},
	)

	// Message lifecycle metrics
	m.MessagesCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "msgstore_messages_created_total",
			Help: "Total number of messages created",
		},
	)

	m.MessagesUpdatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "msgstore_messages_updated_total",
			Help: "Total number of messages modified",
		},
	)

	m.MessagesDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "msgstore_messages_deleted_total",
			Help: "Total number of messages deleted",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "msgstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request with its status
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDbOperation records a database operation
func (m *Metrics) RecordDbOperation(operation string, status string, duration time.Duration) {
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordQueryError counts a rejected request by its error kind
func (m *Metrics) RecordQueryError(kind string) {
	m.QueryErrorsTotal.WithLabelValues(kind).Inc()
}

// UpdateDbStats updates database statistics
func (m *Metrics) UpdateDbStats(messageCount int64) {
	m.DbMessagesTotal.Set(float64(messageCount))
}
