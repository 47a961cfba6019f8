package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline holds the counters shared by the tasks and notification services.
// Every process builds its own registry; series it never touches stay at zero.
type Pipeline struct {
	Registry *prometheus.Registry

	Mutations       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	RPCDuration     *prometheus.HistogramVec
	EventsConsumed  *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	DedupeSkips     prometheus.Counter
	PushConnections prometheus.Gauge
	PushDeliveries  *prometheus.CounterVec
}

func New() *Pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := &Pipeline{
		Registry: reg,
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_task_mutations_total",
			Help: "Task mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_publish_failures_total",
			Help: "Best-effort publishes that were dropped, by subject.",
		}, []string{"subject"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskpulse_rpc_duration_seconds",
			Help:    "Request/reply handler latency by command and error kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command", "kind"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_events_consumed_total",
			Help: "Domain events consumed by the dispatcher, by subject and outcome.",
		}, []string{"subject", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_notifications_total",
			Help: "Notification records persisted by type.",
		}, []string{"type"}),
		DedupeSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskpulse_notification_dedupe_skips_total",
			Help: "Recipients skipped because the event was already delivered to them.",
		}),
		PushConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskpulse_push_connections",
			Help: "Open push gateway streams.",
		}),
		PushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_push_deliveries_total",
			Help: "Dispatch messages handled by the push gateway, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		p.Mutations,
		p.PublishFailures,
		p.RPCDuration,
		p.EventsConsumed,
		p.Notifications,
		p.DedupeSkips,
		p.PushConnections,
		p.PushDeliveries,
	)
	return p
}

func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
