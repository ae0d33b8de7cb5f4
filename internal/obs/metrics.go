// Package obs carries the process's ambient observability stack: structured
// logging and Prometheus metrics shared across every actor.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for the actor framework: lifecycle, inbox depth, timer fires, and
// network I/O. Scraped by Prometheus, visualized in Grafana.
var (
	ActorsRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threadbase_actors_registered",
		Help: "Number of actors ever registered in the process-wide registry.",
	})

	ActorsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threadbase_actors_running",
		Help: "Current number of actors in the Running state.",
	})

	ActorStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_actor_starts_total",
		Help: "Total actor starts by actor type.",
	}, []string{"type"})

	ActorStartFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_actor_start_failures_total",
		Help: "Total actor start failures by actor type.",
	}, []string{"type"})

	InboxDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "threadbase_inbox_depth",
		Help: "Current inbox depth, by actor type, sampled each loop iteration.",
	}, []string{"type"})

	MessagesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_messages_dispatched_total",
		Help: "Total messages dispatched to OnMsg, by actor type.",
	}, []string{"type"})

	TimerFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_timer_fires_total",
		Help: "Total timer fires, by actor type.",
	}, []string{"type"})

	HookErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_hook_errors_total",
		Help: "Total hook errors (logged, swallowed), by actor type and hook.",
	}, []string{"type", "hook"})

	ListenerAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_listener_accepted_total",
		Help: "Total connections accepted by a TCP listener actor.",
	}, []string{"listener"})

	ListenerRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_listener_rejected_total",
		Help: "Total connections rejected by a TCP listener actor, by reason.",
	}, []string{"listener", "reason"})

	TCPReconnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_tcp_reconnect_attempts_total",
		Help: "Total client-role TCP reconnect attempts, by connection actor.",
	}, []string{"connection"})

	TCPBytesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_tcp_bytes_received_total",
		Help: "Total bytes received over TCP, by connection actor.",
	}, []string{"connection"})

	TCPBytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_tcp_bytes_sent_total",
		Help: "Total bytes sent over TCP, by connection actor.",
	}, []string{"connection"})

	UDPDatagramsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_udp_datagrams_received_total",
		Help: "Total datagrams received, by UDP socket actor.",
	}, []string{"socket"})

	LogSinkLinesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_logsink_lines_written_total",
		Help: "Total lines written by a log sink actor.",
	}, []string{"sink"})

	LogSinkRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbase_logsink_rotations_total",
		Help: "Total file rotations performed by a log sink actor.",
	}, []string{"sink"})

	ProcessRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threadbase_process_rss_bytes",
		Help: "Resident set size of this process, as sampled by the resource guard.",
	})

	ResourceGuardRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threadbase_resource_guard_rejections_total",
		Help: "Total admission rejections from the resource guard.",
	})
)

func init() {
	prometheus.MustRegister(
		ActorsRegistered,
		ActorsRunning,
		ActorStarts,
		ActorStartFailures,
		InboxDepth,
		MessagesDispatched,
		TimerFires,
		HookErrors,
		ListenerAccepted,
		ListenerRejected,
		TCPReconnectAttempts,
		TCPBytesReceived,
		TCPBytesSent,
		UDPDatagramsReceived,
		LogSinkLinesWritten,
		LogSinkRotations,
		ProcessRSSBytes,
		ResourceGuardRejections,
	)
}

// Handler returns the promhttp handler for the process's metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
