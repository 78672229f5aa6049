// Package metrics provides Prometheus metrics for supervised streams and
// the engine processes behind them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/hlsfeed/internal/events"
)

const namespace = "hlsfeed"

// Exit reasons used as the "reason" label.
const (
	ExitRequested = "requested"
	ExitClean     = "clean"
	ExitCrashed   = "crashed"
)

var (
	streamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams_active",
		Help:      "Streams currently registered with the supervisor",
	})

	streamStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_starts_total",
		Help:      "Engine processes spawned, by video encoder",
	}, []string{"encoder"})

	streamExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_exits_total",
		Help:      "Engine process exits, by reason",
	}, []string{"reason"})

	probeDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "probe_duration_seconds",
		Help:      "How long hardware encoder detection took",
	})

	startsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_starts_rejected_total",
		Help:      "Start requests refused by the spawn rate limit",
	})

	hwAccelConfirmed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hardware_accel_confirmed",
		Help:      "1 when a hardware encoder passed its functional test",
	}, []string{"encoder"})
)

// RecordStartRejected counts a start request refused by the rate limit.
func RecordStartRejected() {
	startsRejected.Inc()
}

// ExitReason classifies a process exit for the exits counter.
func ExitReason(e events.StreamExitedEvent) string {
	switch {
	case e.Requested:
		return ExitRequested
	case e.ExitCode == 0:
		return ExitClean
	default:
		return ExitCrashed
	}
}

// Subscribe wires the event bus to the collectors. Returns an unsubscribe function.
func Subscribe(bus *events.Bus) func() {
	unsubscribers := []func(){
		bus.Subscribe(func(e events.StreamStartedEvent) {
			streamStarts.WithLabelValues(e.Encoder).Inc()
			streamsActive.Set(float64(e.Active))
		}),
		bus.Subscribe(func(e events.StreamStoppedEvent) {
			streamsActive.Set(float64(e.Active))
		}),
		bus.Subscribe(func(e events.StreamExitedEvent) {
			streamExits.WithLabelValues(ExitReason(e)).Inc()
			streamsActive.Set(float64(e.Active))
			DeleteFFmpegMetrics(e.StreamID)
		}),
		bus.Subscribe(func(e events.CapabilitiesDetectedEvent) {
			probeDuration.Set(e.DurationSeconds)
			confirmed := 0.0
			if e.HWAccelConfirmed {
				confirmed = 1
			}
			hwAccelConfirmed.WithLabelValues(e.Encoder).Set(confirmed)
		}),
	}

	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}
