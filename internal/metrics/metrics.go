package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iago/reportflow/internal/domain"
)

const namespace = "reportflow"

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	DomainEvents     *prometheus.CounterVec
	ExportsFinished  *prometheus.CounterVec
	ExportDuration   *prometheus.HistogramVec
	ExportBytes      *prometheus.HistogramVec
	Deliveries       *prometheus.CounterVec
	SchedulesFired   *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	QueueBacklogSize prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DomainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Domain events published after a successful save.",
		}, []string{"aggregate", "event"}),
		ExportsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_finished_total",
			Help:      "Export jobs that reached a final state in the worker.",
		}, []string{"format", "status"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent rendering and storing an export.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"format"}),
		ExportBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_size_bytes",
			Help:      "Size of stored export files.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"format"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Scheduled report deliveries by method and result.",
		}, []string{"method", "result"}),
		SchedulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_fired_total",
			Help:      "Due schedules picked up by the dispatcher.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		QueueBacklogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_messages",
			Help:      "Messages waiting in the batching producer.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DomainEvents,
		m.ExportsFinished,
		m.ExportDuration,
		m.ExportBytes,
		m.Deliveries,
		m.SchedulesFired,
		m.HTTPRequests,
		m.HTTPDuration,
		m.QueueBacklogSize,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish counts domain events. It satisfies the services' event sink.
func (m *Metrics) Publish(_ context.Context, events []domain.Event) {
	for _, event := range events {
		m.DomainEvents.WithLabelValues(event.AggregateType, event.Name).Inc()
	}
}

func (m *Metrics) ObserveExport(format domain.ExportFormat, status domain.ExportJobStatus, elapsed time.Duration, size int64) {
	m.ExportsFinished.WithLabelValues(string(format), string(status)).Inc()
	m.ExportDuration.WithLabelValues(string(format)).Observe(elapsed.Seconds())
	if size > 0 {
		m.ExportBytes.WithLabelValues(string(format)).Observe(float64(size))
	}
}

func (m *Metrics) ObserveDelivery(method domain.DeliveryMethod, err error) {
	m.Deliveries.WithLabelValues(string(method), result(err)).Inc()
}

func (m *Metrics) ObserveScheduleFired(err error) {
	m.SchedulesFired.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// WatchQueueBacklog samples backlog into QueueBacklogSize every interval
// until ctx is cancelled. Sampling errors leave the last value in place.
func (m *Metrics) WatchQueueBacklog(ctx context.Context, interval time.Duration, backlog func(context.Context) (int64, error)) {
	sample := func() {
		if size, err := backlog(ctx); err == nil {
			m.QueueBacklogSize.Set(float64(size))
		}
	}
	sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
