// Package classifier recognizes TCP handshake-initiating segments in raw
// Ethernet frames and emits one Handshake event per match.
//
// The walk is a flat sequence of fixed-offset reads: Ethernet, then a
// fixed-size IPv4 or IPv6 header, then a fixed-size TCP header. Every read
// is preceded by a bounds check against the cumulative offset, and every
// rejection is a plain Pass result. IPv4 options and IPv6 extension headers
// are not walked, so a TCP header behind them is read at the wrong offset
// and normally fails its own checks.
package classifier

import (
	"encoding/binary"

	"synwatch/event"
)

const (
	EthernetHeaderSize = 14
	IPv4HeaderSize     = 20
	IPv6HeaderSize     = 40
	TCPHeaderSize      = 20

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	protoTCP      = 6

	tcpFlagSYN = 0x02
	tcpFlagACK = 0x10
)

// Result is the outcome of one Classify call. The frame itself is never
// modified or held back regardless of the result.
type Result uint8

const (
	Pass    Result = iota // not a SYN segment, or truncated, or not TCP/IP
	Emitted               // event handed to the output
	Dropped               // event built but the output refused it
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Emitted:
		return "emitted"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Output receives assembled events. Submit must not block; it reports false
// when the event was discarded.
type Output interface {
	Submit(ev event.Handshake) bool
}

// Clock returns monotonic nanoseconds.
type Clock func() uint64

// Classifier is safe for concurrent use; it keeps no per-packet state.
type Classifier struct {
	out     Output
	now     Clock
	observe func(Result)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock replaces the monotonic clock.
func WithClock(clock Clock) Option {
	return func(c *Classifier) { c.now = clock }
}

// WithObserver registers fn to be called with every result.
func WithObserver(fn func(Result)) Option {
	return func(c *Classifier) { c.observe = fn }
}

// New returns a classifier emitting into out.
func New(out Output, opts ...Option) *Classifier {
	c := &Classifier{out: out, now: MonotonicNow}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects one frame.
func (c *Classifier) Classify(frame []byte) Result {
	res := Pass
	if ev, ok := Walk(frame); ok {
		res = c.emit(ev)
	}
	if c.observe != nil {
		c.observe(res)
	}
	return res
}

func (c *Classifier) emit(ev event.Handshake) Result {
	ev.Timestamp = c.now()
	if c.out == nil || !c.out.Submit(ev) {
		return Dropped
	}
	return Emitted
}

// Walk parses frame and returns the handshake fields it carries, without a
// timestamp. ok is false for anything that is not a fully present
// Ethernet/IP/TCP SYN segment.
func Walk(frame []byte) (ev event.Handshake, ok bool) {
	end := len(frame)
	if end < EthernetHeaderSize {
		return ev, false
	}

	var offset int
	switch binary.BigEndian.Uint16(frame[12:14]) {
	case etherTypeIPv4:
		offset = EthernetHeaderSize + IPv4HeaderSize
		if end < offset {
			return ev, false
		}
		ip := frame[EthernetHeaderSize:offset]
		if ip[9] != protoTCP {
			return ev, false
		}
		// ::ffff:a.b.c.d
		ev.SrcAddr[10], ev.SrcAddr[11] = 0xff, 0xff
		ev.DstAddr[10], ev.DstAddr[11] = 0xff, 0xff
		copy(ev.SrcAddr[12:], ip[12:16])
		copy(ev.DstAddr[12:], ip[16:20])

	case etherTypeIPv6:
		offset = EthernetHeaderSize + IPv6HeaderSize
		if end < offset {
			return ev, false
		}
		ip := frame[EthernetHeaderSize:offset]
		if ip[6] != protoTCP {
			return ev, false
		}
		copy(ev.SrcAddr[:], ip[8:24])
		copy(ev.DstAddr[:], ip[24:40])

	default:
		return ev, false
	}

	if end < offset+TCPHeaderSize {
		return ev, false
	}
	tcp := frame[offset : offset+TCPHeaderSize]
	flags := tcp[13]
	if flags&tcpFlagSYN == 0 {
		return ev, false
	}

	ev.SrcPort = binary.BigEndian.Uint16(tcp[0:2])
	ev.DstPort = binary.BigEndian.Uint16(tcp[2:4])
	ev.SYN = true
	ev.ACK = flags&tcpFlagACK != 0
	return ev, true
}
