package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "centaurus"

var (
	// Sockets is the number of live connection tasks by role
	Sockets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sockets",
		Help:      "Number of open sockets",
	}, []string{"role"})

	// Streams is the number of live stream tasks
	Streams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams",
		Help:      "Number of open streams",
	}, []string{"direction", "origin"})

	// Events counts commands served by socket and stream tasks
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total number of commands served, by command and result",
	}, []string{"event", "result"})

	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_read_bytes_total",
		Help:      "Total number of bytes read from streams",
	})

	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_written_bytes_total",
		Help:      "Total number of bytes written to streams",
	})

	// NotifyFailures counts peer streams whose owner could not be told
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_failures_total",
		Help:      "Total number of failed peer stream notifications",
	})
)

// Observe counts one served command.
func Observe(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Events.WithLabelValues(event, result).Inc()
}
