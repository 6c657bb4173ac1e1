package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the delivery engine.
type Metrics struct {
	// Task pipeline metrics
	TasksProcessedTotal *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
	TasksRecovered      prometheus.Counter
	QueueDepth          *prometheus.GaugeVec

	// Delivery metrics
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec

	// Change log metrics
	ChangesProducedTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TasksProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubcap_tasks_processed_total",
				Help: "Total number of processed tasks by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hubcap_task_duration_seconds",
				Help:    "Task handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		TasksRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hubcap_tasks_recovered_total",
				Help: "Processing tasks returned to waiting by the stale reaper",
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hubcap_queue_depth",
				Help: "Tasks per type and state",
			},
			[]string{"type", "state"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubcap_deliveries_total",
				Help: "Total number of outbound webhook attempts by event and status",
			},
			[]string{"event", "status"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hubcap_delivery_duration_seconds",
				Help:    "Outbound webhook request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		ChangesProducedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubcap_changes_produced_total",
				Help: "Total number of changes appended to the change log",
			},
			[]string{"type"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.TasksProcessedTotal,
		m.TaskDuration,
		m.TasksRecovered,
		m.QueueDepth,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.ChangesProducedTotal,
	)

	return m
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTask records one task handler completion.
func (m *Metrics) ObserveTask(taskType, outcome string, duration time.Duration) {
	m.TasksProcessedTotal.WithLabelValues(taskType, outcome).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// ObserveDelivery records one outbound webhook attempt. status 0 means a
// transport failure before any response arrived.
func (m *Metrics) ObserveDelivery(event string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.DeliveriesTotal.WithLabelValues(event, label).Inc()
	m.DeliveryDuration.WithLabelValues(event).Observe(duration.Seconds())
}
