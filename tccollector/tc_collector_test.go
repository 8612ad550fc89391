package tccollector

import (
	"net/netip"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synwatch/event"
	"synwatch/logging"
	"synwatch/tccollector/utility"
)

func newTestCollector(handle Handler) *collector {
	return &collector{
		iface:  "test0",
		handle: handle,
		log:    logging.WithComponent("test"),
	}
}

func TestProcessDecodesAndCounts(t *testing.T) {
	var got []event.Handshake
	c := newTestCollector(func(ev event.Handshake) { got = append(got, ev) })

	syn := event.Handshake{
		SrcAddr: event.MappedAddr(netip.MustParseAddr("10.0.0.1")),
		DstAddr: event.MappedAddr(netip.MustParseAddr("10.0.0.2")),
		SrcPort: 443, DstPort: 51000, SYN: true, Timestamp: 1,
	}
	synAck := syn
	synAck.ACK = true
	synAck.Timestamp = 2

	c.process(syn.Encode(), 0)
	// perf samples are padded; extra tail bytes must be tolerated
	c.process(append(synAck.Encode(), 0, 0, 0, 0), 0)

	require.Len(t, got, 2)
	assert.Equal(t, syn, got[0])
	assert.Equal(t, synAck, got[1])
	assert.Equal(t, Stats{Received: 2, SYN: 1, SYNACK: 1}, c.Stats())
}

func TestProcessLostAndShort(t *testing.T) {
	called := 0
	c := newTestCollector(func(event.Handshake) { called++ })

	c.process(nil, 17)
	c.process(make([]byte, 12), 0)

	assert.Zero(t, called)
	assert.Equal(t, Stats{Lost: 17, DecodeErrors: 1}, c.Stats())
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Handler: func(event.Handshake) {}})
	assert.Error(t, err)

	_, err = New(Options{Interface: "lo"})
	assert.Error(t, err)

	_, err = New(Options{Interface: "definitely-not-an-iface0", Handler: func(event.Handshake) {}})
	assert.Error(t, err)
}

func TestAttachRejectsUnknownMode(t *testing.T) {
	_, err := attach(nil, 1, "xdp", "ingress")
	assert.Error(t, err)
}

func TestGenerateWritesDefaultObject(t *testing.T) {
	src, err := os.ReadFile("generate.go")
	require.NoError(t, err)

	var directive string
	for _, line := range strings.Split(string(src), "\n") {
		if strings.HasPrefix(line, "//go:generate ") {
			directive = line
		}
	}
	require.NotEmpty(t, directive)
	assert.Contains(t, directive, "-target bpf")
	assert.Contains(t, directive, "../bpf/probe.c")
	assert.True(t, strings.HasSuffix(directive, "-o ../"+utility.DefaultObjectName), directive)
}

func TestProbeLinearizesBeforeWalking(t *testing.T) {
	src, err := os.ReadFile("../bpf/probe.c")
	require.NoError(t, err)

	_, body, found := strings.Cut(string(src), "int "+ProgramName+"(struct __sk_buff *skb) {")
	require.True(t, found, "program %s not found", ProgramName)

	pull := strings.Index(body, "bpf_skb_pull_data(skb, 0)")
	data := strings.Index(body, "skb->data")
	require.NotEqual(t, -1, pull)
	assert.Less(t, pull, data, "skb must be pulled before data pointers are read")
	assert.Contains(t, body[pull:data], "return TC_ACT_OK;")
}
