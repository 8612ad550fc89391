// Package event defines the Handshake record shared by the kernel probe,
// the in-process classifier and every consumer.
package event

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Size is the byte length of one record as written by the probe.
// The kernel struct carries two bytes of padding before Timestamp so the
// 8-byte field stays naturally aligned.
const Size = 48

const (
	offSrcAddr = 0
	offDstAddr = 16
	offSrcPort = 32
	offDstPort = 34
	offSYN     = 36
	offACK     = 37
	offTs      = 40
)

// ErrShortRecord is returned by Decode for samples smaller than Size.
var ErrShortRecord = errors.New("event: short record")

// Handshake mirrors the C struct emitted for each observed SYN segment.
// Addresses are 128-bit; IPv4 endpoints are stored IPv4-mapped.
// Ports are in host byte order here and in network byte order on the wire.
// Timestamp is CLOCK_MONOTONIC nanoseconds taken at classification time.
type Handshake struct {
	SrcAddr   [16]byte
	DstAddr   [16]byte
	SrcPort   uint16
	DstPort   uint16
	SYN       bool
	ACK       bool
	Timestamp uint64
}

// Decode parses a raw perf sample into a Handshake.
// Trailing bytes beyond Size are ignored.
func Decode(raw []byte) (Handshake, error) {
	if len(raw) < Size {
		return Handshake{}, fmt.Errorf("%w: got=%d want>=%d", ErrShortRecord, len(raw), Size)
	}

	var ev Handshake
	copy(ev.SrcAddr[:], raw[offSrcAddr:offSrcAddr+16])
	copy(ev.DstAddr[:], raw[offDstAddr:offDstAddr+16])
	ev.SrcPort = binary.BigEndian.Uint16(raw[offSrcPort:])
	ev.DstPort = binary.BigEndian.Uint16(raw[offDstPort:])
	ev.SYN = raw[offSYN] != 0
	ev.ACK = raw[offACK] != 0
	ev.Timestamp = binary.NativeEndian.Uint64(raw[offTs:])
	return ev, nil
}

// Encode writes h in the wire layout into a fresh Size-byte slice.
func (h Handshake) Encode() []byte {
	b := make([]byte, Size)
	h.EncodeTo(b)
	return b
}

// EncodeTo writes h into b, which must be at least Size bytes long.
func (h Handshake) EncodeTo(b []byte) {
	_ = b[Size-1]
	copy(b[offSrcAddr:], h.SrcAddr[:])
	copy(b[offDstAddr:], h.DstAddr[:])
	binary.BigEndian.PutUint16(b[offSrcPort:], h.SrcPort)
	binary.BigEndian.PutUint16(b[offDstPort:], h.DstPort)
	b[offSYN] = boolByte(h.SYN)
	b[offACK] = boolByte(h.ACK)
	b[38], b[39] = 0, 0
	binary.NativeEndian.PutUint64(b[offTs:], h.Timestamp)
}

// Src returns the source endpoint with IPv4-mapped addresses unmapped.
func (h Handshake) Src() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(h.SrcAddr).Unmap(), h.SrcPort)
}

// Dst returns the destination endpoint with IPv4-mapped addresses unmapped.
func (h Handshake) Dst() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(h.DstAddr).Unmap(), h.DstPort)
}

// IsIPv4 reports whether the source address is IPv4-mapped.
func (h Handshake) IsIPv4() bool {
	return netip.AddrFrom16(h.SrcAddr).Is4In6()
}

// Kind returns "SYN" or "SYN-ACK".
func (h Handshake) Kind() string {
	if h.ACK {
		return "SYN-ACK"
	}
	return "SYN"
}

func (h Handshake) String() string {
	return fmt.Sprintf("%s %s -> %s", h.Kind(), h.Src(), h.Dst())
}

// MappedAddr returns the 128-bit form of addr: IPv4 addresses become
// ::ffff:a.b.c.d, IPv6 addresses are returned as-is.
func MappedAddr(addr netip.Addr) [16]byte {
	return addr.As16()
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
