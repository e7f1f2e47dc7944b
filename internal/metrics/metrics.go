// Package metrics exposes the pipeline's counters on a Prometheus
// registry via promauto, in the idiom the pack's own instrumented
// services (grafana-tempo, cc-backend) use for their counter/gauge
// wiring: every counter registered once at construction. The counters
// are updated by cmd/ingestd, which folds component counter snapshots
// into them once a second.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter the pipeline's components report
// against, grouped by the component that owns them.
type Registry struct {
	reg *prometheus.Registry

	MessagesReceived  prometheus.Counter
	MessagesProcessed prometheus.Counter
	MessagesDeleted   prometheus.Counter
	MessagesFailed    prometheus.Counter
	ShutdownAbandoned prometheus.Counter

	ObjectsProcessed prometheus.Counter
	ObjectsFailed    prometheus.Counter

	DecodeMalformedBase64 prometheus.Counter
	DecodeMalformedGzip   prometheus.Counter
	DecodeParseErrors     prometheus.Counter
	DecodeInvalidUTF8     prometheus.Counter

	FilterRejects *prometheus.CounterVec

	PublishBatchSuccess        prometheus.Counter
	PublishPartialFailures     prometheus.Counter
	PublishPermanentErrors     prometheus.Counter
	PublishRetriableErrors     prometheus.Counter
	PublishDroppedAfterRetries prometheus.Counter
	PublishRecordTooLarge      prometheus.Counter
}

// New builds a Registry with every counter registered up front.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		MessagesReceived:  factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "receiver", Name: "messages_received_total"}),
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "receiver", Name: "messages_processed_total"}),
		MessagesDeleted:   factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "receiver", Name: "messages_deleted_total"}),
		MessagesFailed:    factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "receiver", Name: "messages_failed_total"}),
		ShutdownAbandoned: factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "receiver", Name: "shutdown_abandoned_total"}),

		ObjectsProcessed: factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "ingestor", Name: "objects_processed_total"}),
		ObjectsFailed:    factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "ingestor", Name: "objects_failed_total"}),

		DecodeMalformedBase64: factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "decode", Name: "malformed_base64_total"}),
		DecodeMalformedGzip:   factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "decode", Name: "malformed_gzip_total"}),
		DecodeParseErrors:     factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "decode", Name: "parse_errors_total"}),
		DecodeInvalidUTF8:     factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "decode", Name: "invalid_utf8_total"}),

		FilterRejects: factory.NewCounterVec(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "transform", Name: "filter_rejects_total"}, []string{"reason"}),

		PublishBatchSuccess:        factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "batch_success_total"}),
		PublishPartialFailures:     factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "partial_failures_total"}),
		PublishPermanentErrors:     factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "permanent_errors_total"}),
		PublishRetriableErrors:     factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "retriable_errors_total"}),
		PublishDroppedAfterRetries: factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "dropped_after_retries_total"}),
		PublishRecordTooLarge:      factory.NewCounter(prometheus.CounterOpts{Namespace: "wifi_ingest", Subsystem: "publish", Name: "record_too_large_total"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// AddN increments a counter by an arbitrary non-negative delta, used
// when folding the delta of a component's own Counters snapshot into
// the registry on each reporting tick.
func AddN(c prometheus.Counter, n int) {
	if n > 0 {
		c.Add(float64(n))
	}
}
