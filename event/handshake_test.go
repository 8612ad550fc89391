package event

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRecord lays out a record byte by byte, independent of Encode.
func rawRecord(src, dst netip.Addr, sport, dport uint16, syn, ack bool, ts uint64) []byte {
	b := make([]byte, Size)
	s, d := src.As16(), dst.As16()
	copy(b[0:16], s[:])
	copy(b[16:32], d[:])
	b[32], b[33] = byte(sport>>8), byte(sport)
	b[34], b[35] = byte(dport>>8), byte(dport)
	if syn {
		b[36] = 1
	}
	if ack {
		b[37] = 1
	}
	binary.NativeEndian.PutUint64(b[40:48], ts)
	return b
}

func TestDecodeIPv4Mapped(t *testing.T) {
	raw := rawRecord(
		netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"),
		443, 51000, true, false, 123456789,
	)

	ev, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("::ffff:10.0.0.1"), netip.AddrFrom16(ev.SrcAddr))
	assert.Equal(t, netip.MustParseAddr("::ffff:10.0.0.2"), netip.AddrFrom16(ev.DstAddr))
	assert.Equal(t, uint16(443), ev.SrcPort)
	assert.Equal(t, uint16(51000), ev.DstPort)
	assert.True(t, ev.SYN)
	assert.False(t, ev.ACK)
	assert.Equal(t, uint64(123456789), ev.Timestamp)
	assert.True(t, ev.IsIPv4())
	assert.Equal(t, "10.0.0.1:443", ev.Src().String())
	assert.Equal(t, "10.0.0.2:51000", ev.Dst().String())
}

func TestDecodeIPv6(t *testing.T) {
	src := netip.MustParseAddr("2001:db8::1")
	dst := netip.MustParseAddr("2001:db8::2")
	raw := rawRecord(src, dst, 40000, 22, true, true, 42)

	ev, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, src.As16(), ev.SrcAddr)
	assert.Equal(t, dst.As16(), ev.DstAddr)
	assert.True(t, ev.ACK)
	assert.False(t, ev.IsIPv4())
	assert.Equal(t, "SYN-ACK", ev.Kind())
	assert.Equal(t, "[2001:db8::1]:40000", ev.Src().String())
}

func TestDecodeShortRecord(t *testing.T) {
	for _, n := range []int{0, 1, 38, Size - 1} {
		_, err := Decode(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortRecord, "len=%d", n)
	}
}

func TestDecodeIgnoresTrailingPadding(t *testing.T) {
	raw := rawRecord(
		netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2"),
		1, 2, true, false, 7,
	)
	raw = append(raw, 0xde, 0xad, 0xbe, 0xef)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ev.Timestamp)
}

func TestEncodeMatchesKernelLayout(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	ev := Handshake{
		SrcAddr:   MappedAddr(src),
		DstAddr:   MappedAddr(dst),
		SrcPort:   443,
		DstPort:   51000,
		SYN:       true,
		ACK:       true,
		Timestamp: 99,
	}

	assert.Equal(t, rawRecord(src, dst, 443, 51000, true, true, 99), ev.Encode())

	back, err := Decode(ev.Encode())
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}

func TestMappedAddr(t *testing.T) {
	m := MappedAddr(netip.MustParseAddr("10.0.0.1"))
	assert.Equal(t, [16]byte{10: 0xff, 11: 0xff, 12: 10, 13: 0, 14: 0, 15: 1}, m)

	v6 := netip.MustParseAddr("fe80::1")
	assert.Equal(t, v6.As16(), MappedAddr(v6))
}
