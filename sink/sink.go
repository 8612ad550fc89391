// Package sink delivers Handshake events to their consumers: the console, a
// JSON-lines stream, or a Kafka topic.
package sink

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"synwatch/event"
	"synwatch/logging"
	"synwatch/metrics"
	"synwatch/tccollector/utility"
)

// Sink consumes events. Write is called from a single goroutine.
type Sink interface {
	Name() string
	Write(ev event.Handshake) error
	Close() error
}

// Record is the serialized form of an event.
type Record struct {
	Time        time.Time `json:"time"`
	MonotonicNs uint64    `json:"monotonic_ns"`
	Kind        string    `json:"kind"`
	Family      string    `json:"family"`
	SrcAddr     string    `json:"src_addr"`
	SrcPort     uint16    `json:"src_port"`
	DstAddr     string    `json:"dst_addr"`
	DstPort     uint16    `json:"dst_port"`
	SYN         bool      `json:"syn"`
	ACK         bool      `json:"ack"`
}

// NewRecord converts ev, mapping its monotonic timestamp to wall-clock time.
func NewRecord(ev event.Handshake) Record {
	family := "ipv6"
	if ev.IsIPv4() {
		family = "ipv4"
	}
	src, dst := ev.Src(), ev.Dst()
	return Record{
		Time:        utility.ConvertMonotonic(ev.Timestamp),
		MonotonicNs: ev.Timestamp,
		Kind:        ev.Kind(),
		Family:      family,
		SrcAddr:     src.Addr().String(),
		SrcPort:     src.Port(),
		DstAddr:     dst.Addr().String(),
		DstPort:     dst.Port(),
		SYN:         ev.SYN,
		ACK:         ev.ACK,
	}
}

// Multi fans every event out to all sinks. A failing sink is counted and
// logged; the others still receive the event.
type Multi struct {
	sinks []Sink
	log   *logrus.Entry
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: logging.WithComponent("sink")}
}

func (m *Multi) Name() string { return "multi" }

// Handle is a Write that swallows errors, for use as an event callback.
func (m *Multi) Handle(ev event.Handshake) {
	_ = m.Write(ev)
}

func (m *Multi) Write(ev event.Handshake) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ev); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			m.log.WithError(err).WithField("sink", s.Name()).Debug("write failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}
