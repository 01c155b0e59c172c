// Package instrument holds the relay's Prometheus metrics.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securechat"

var (
	activeConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open client connections",
		},
	)
	acceptedConns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_connections_total",
			Help:      "Number of accepted client connections",
		},
	)
	incomingFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_frames_total",
			Help:      "Number of inbound frames by type",
		},
		[]string{"type"},
	)
	authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Number of failed login attempts",
		},
	)
	lockedOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locked_out_attempts_total",
			Help:      "Number of login attempts rejected by the lockout guard",
		},
	)
	keyExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchanges_total",
			Help:      "Number of key exchange attempts by result",
		},
		[]string{"result"},
	)
	delivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_messages_total",
			Help:      "Number of messages queued to a recipient connection",
		},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Number of messages dropped by reason",
		},
		[]string{"reason"},
	)
	decryptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Number of inbound envelopes that failed to decrypt",
		},
	)
	sinkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Number of message records the persistence sink failed to store",
		},
	)

	registerOnce sync.Once
)

// Init registers every metric with the default registry. Repeated calls are
// no-ops.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			activeConns,
			acceptedConns,
			incomingFrames,
			authFailures,
			lockedOut,
			keyExchanges,
			delivered,
			dropped,
			decryptFailures,
			sinkFailures,
		)
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func ConnOpened() {
	acceptedConns.Inc()
	activeConns.Inc()
}

func ConnClosed() {
	activeConns.Dec()
}

func Incoming(frameType string) {
	incomingFrames.With(prometheus.Labels{"type": frameType}).Inc()
}

func AuthFailure() {
	authFailures.Inc()
}

func LockedOut() {
	lockedOut.Inc()
}

func KeyExchange(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	keyExchanges.With(prometheus.Labels{"result": result}).Inc()
}

func Delivered() {
	delivered.Inc()
}

// Dropped counts a message that reached no recipient, or was discarded by a
// full outbound queue.
func Dropped(reason string) {
	dropped.With(prometheus.Labels{"reason": reason}).Inc()
}

func DecryptFailure() {
	decryptFailures.Inc()
}

func SinkFailure() {
	sinkFailures.Inc()
}
