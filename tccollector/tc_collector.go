// Package tccollector loads the handshake probe, attaches it to an
// interface with TC and streams the events it emits.
package tccollector

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"
	"github.com/sirupsen/logrus"

	"synwatch/event"
	"synwatch/logging"
	"synwatch/tccollector/utility"
)

// Names inside probe.o.
const (
	ProgramName = "classify_syn"
	MapName     = "handshakes"
)

// Collector defines Run/Close behavior.
type Collector interface {
	Run(ctx context.Context) error
	Stats() Stats
	Close()
}

// Handler receives every decoded event. It runs on the reader goroutine and
// should not block for long: the kernel drops events while the per-CPU
// buffers are full.
type Handler func(event.Handshake)

// Options configures New.
type Options struct {
	Interface   string
	Object      string // path to probe.o; empty = next to the executable
	Mode        string // tcx | netlink
	Direction   string // ingress | egress
	PerCPUPages int
	Handler     Handler
	StatsChan   chan<- Stats // optional, fed once per StatsInterval
}

// Stats counts what the reader has seen so far.
type Stats struct {
	Received     uint64
	SYN          uint64
	SYNACK       uint64
	Lost         uint64
	DecodeErrors uint64
}

// New loads, attaches, and returns a TC collector.
func New(opts Options) (Collector, error) {
	if strings.TrimSpace(opts.Interface) == "" {
		return nil, fmt.Errorf("interface name is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("event handler is required")
	}

	iface, err := net.InterfaceByName(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %q: %w", opts.Interface, err)
	}

	obj, err := utility.ResolveObject(opts.Object)
	if err != nil {
		return nil, fmt.Errorf("resolve probe object: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(obj)
	if err != nil {
		return nil, fmt.Errorf("load spec: %w", err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	prog, ok := coll.Programs[ProgramName]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("program %q not found in %s", ProgramName, obj)
	}
	pipe, ok := coll.Maps[MapName]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("map %q not found in %s", MapName, obj)
	}

	att, err := attach(prog, iface.Index, opts.Mode, opts.Direction)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("attach TC (%s/%s): %w", opts.Mode, opts.Direction, err)
	}

	pages := opts.PerCPUPages
	if pages <= 0 {
		pages = 64
	}
	rd, err := perf.NewReader(pipe, os.Getpagesize()*pages)
	if err != nil {
		att.Close()
		coll.Close()
		return nil, fmt.Errorf("perf reader: %w", err)
	}

	return &collector{
		iface:     opts.Interface,
		direction: opts.Direction,
		coll:      coll,
		att:       att,
		rd:        rd,
		handle:    opts.Handler,
		statsChan: opts.StatsChan,
		log:       logging.WithComponent("tccollector").WithField("iface", opts.Interface),
	}, nil
}

type collector struct {
	iface     string           // network interface name
	direction string           // ingress or egress
	coll      *ebpf.Collection // eBPF collection
	att       attachment       // TC attachment (tcx link or netlink filter)
	rd        *perf.Reader     // perf event reader
	handle    Handler          // event consumer
	statsChan chan<- Stats     // optional stats feed
	log       *logrus.Entry

	received     atomic.Uint64
	syn          atomic.Uint64
	synAck       atomic.Uint64
	lost         atomic.Uint64
	decodeErrors atomic.Uint64
	closed       atomic.Bool
}

// Close cleans up the perf reader, attachment, and collection.
func (c *collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.rd != nil {
		c.rd.Close()
	}
	if c.att != nil {
		if err := c.att.Close(); err != nil {
			c.log.WithError(err).Warn("detach failed")
		}
	}
	if c.coll != nil {
		c.coll.Close()
	}
}
