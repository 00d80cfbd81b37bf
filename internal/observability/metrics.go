package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posecast",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	relayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "relay",
			Name:      "frames_received_total",
			Help:      "Frames received by the relay from peers.",
		},
		[]string{"node", "message_type"},
	)
	relayDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Fan-out deliveries by result (queued, dropped).",
		},
		[]string{"node", "result"},
	)
	relayPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "posecast",
			Subsystem: "relay",
			Name:      "connected_peers",
			Help:      "Peers currently joined to the relay.",
		},
		[]string{"node"},
	)
	peerSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "peer",
			Name:      "messages_sent_total",
			Help:      "Replication messages sent by the local pose observer.",
		},
		[]string{"node", "kind"},
	)
	applierResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "applier",
			Name:      "resolutions_total",
			Help:      "Pose definition resolutions by source.",
		},
		[]string{"source"},
	)
	applierOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posecast",
			Subsystem: "applier",
			Name:      "outcomes_total",
			Help:      "Inbound replication messages by applier outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			relayFrames,
			relayDeliveries,
			relayPeers,
			peerSent,
			applierResolutions,
			applierOutcomes,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordRelayFrame(node string, messageType uint32) {
	RegisterMetrics()
	relayFrames.WithLabelValues(node, strconv.FormatUint(uint64(messageType), 10)).Inc()
}

func RecordRelayDelivery(node string, queued bool) {
	RegisterMetrics()
	result := "dropped"
	if queued {
		result = "queued"
	}
	relayDeliveries.WithLabelValues(node, result).Inc()
}

func SetRelayPeers(node string, n int) {
	RegisterMetrics()
	relayPeers.WithLabelValues(node).Set(float64(n))
}

func RecordPeerSent(node string, stop bool) {
	RegisterMetrics()
	kind := "pose"
	if stop {
		kind = "stop"
	}
	peerSent.WithLabelValues(node, kind).Inc()
}

func RecordApplierResolution(source string) {
	RegisterMetrics()
	applierResolutions.WithLabelValues(source).Inc()
}

func RecordApplierOutcome(outcome string) {
	RegisterMetrics()
	applierOutcomes.WithLabelValues(outcome).Inc()
}
