package tccollector

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"synwatch/config"
)

// attachment is whatever keeps the program hooked to the interface.
type attachment interface {
	Close() error
}

func attach(prog *ebpf.Program, ifindex int, mode, direction string) (attachment, error) {
	switch mode {
	case config.ModeTCX, "":
		return attachTCX(prog, ifindex, direction)
	case config.ModeNetlink:
		return attachNetlink(prog, ifindex, direction)
	default:
		return nil, fmt.Errorf("unknown attach mode %q", mode)
	}
}

// attachTCX uses a bpf_link based tcx hook (kernel 6.6+).
func attachTCX(prog *ebpf.Program, ifindex int, direction string) (attachment, error) {
	at := ebpf.AttachTCXIngress
	if direction == config.DirectionEgress {
		at = ebpf.AttachTCXEgress
	}
	return link.AttachTCX(link.TCXOptions{
		Interface: ifindex,
		Program:   prog,
		Attach:    at,
	})
}

// netlinkFilter is a direct-action BPF filter on a clsact qdisc.
type netlinkFilter struct {
	filter *netlink.BpfFilter
}

func attachNetlink(prog *ebpf.Program, ifindex int, direction string) (attachment, error) {
	qdisc := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: ifindex,
			Handle:    netlink.MakeHandle(0xffff, 0),
			Parent:    netlink.HANDLE_CLSACT,
		},
		QdiscType: "clsact",
	}
	if err := netlink.QdiscReplace(qdisc); err != nil {
		return nil, fmt.Errorf("clsact qdisc: %w", err)
	}

	parent := uint32(netlink.HANDLE_MIN_INGRESS)
	if direction == config.DirectionEgress {
		parent = netlink.HANDLE_MIN_EGRESS
	}
	filter := &netlink.BpfFilter{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: ifindex,
			Parent:    parent,
			Handle:    netlink.MakeHandle(0, 1),
			Protocol:  unix.ETH_P_ALL,
			Priority:  1,
		},
		Fd:           prog.FD(),
		Name:         ProgramName,
		DirectAction: true,
	}
	if err := netlink.FilterReplace(filter); err != nil {
		return nil, fmt.Errorf("bpf filter: %w", err)
	}
	return &netlinkFilter{filter: filter}, nil
}

// Close removes the filter; the clsact qdisc is left for other users.
func (f *netlinkFilter) Close() error {
	return netlink.FilterDel(f.filter)
}
