// Package metrics exposes Prometheus counters for the classifier, the
// output ring, the kernel reader and the sinks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"synwatch/classifier"
	"synwatch/event"
)

var (
	// ClassifiedTotal counts frames seen by the in-process classifier by result.
	ClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synwatch_classified_frames_total",
			Help: "Frames inspected by the classifier, by result",
		},
		[]string{"result"},
	)

	// HandshakesTotal counts events delivered to consumers by kind and family.
	HandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synwatch_handshake_events_total",
			Help: "Handshake events delivered to consumers",
		},
		[]string{"kind", "family"},
	)

	// LostSamplesTotal counts perf samples the kernel reported as lost.
	LostSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synwatch_perf_lost_samples_total",
			Help: "Perf samples lost between probe and reader",
		},
	)

	// DecodeErrorsTotal counts raw records that failed to decode.
	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synwatch_decode_errors_total",
			Help: "Raw records that could not be decoded",
		},
	)

	// SinkErrorsTotal counts failed sink writes.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synwatch_sink_errors_total",
			Help: "Failed sink writes",
		},
		[]string{"sink"},
	)

	// RingPending is the number of events queued in the output ring.
	RingPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "synwatch_ring_pending_events",
			Help: "Events waiting in the output ring",
		},
	)
)

// ObserveResult is a classifier.WithObserver callback.
func ObserveResult(r classifier.Result) {
	ClassifiedTotal.WithLabelValues(r.String()).Inc()
}

// ObserveHandshake records one delivered event.
func ObserveHandshake(ev event.Handshake) {
	family := "ipv6"
	if ev.IsIPv4() {
		family = "ipv4"
	}
	HandshakesTotal.WithLabelValues(ev.Kind(), family).Inc()
}
