package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"synwatch/event"
	"synwatch/tccollector/utility"
)

// PortLookup resolves the local ports a process owns.
type PortLookup func(pid int32) ([]uint16, error)

// Filter decides which events reach the event pane. The zero value shows
// everything.
type Filter struct {
	mu     sync.RWMutex
	ports  map[uint16]struct{}
	label  string
	paused bool
	lookup PortLookup
}

func NewFilter(lookup PortLookup) *Filter {
	if lookup == nil {
		lookup = utility.GetPortsByPID
	}
	return &Filter{lookup: lookup}
}

// Match reports whether ev should be displayed.
func (f *Filter) Match(ev event.Handshake) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.paused {
		return false
	}
	if f.ports == nil {
		return true
	}
	_, src := f.ports[ev.SrcPort]
	_, dst := f.ports[ev.DstPort]
	return src || dst
}

// Apply executes cmd and returns a status line for the system log.
func (f *Filter) Apply(cmd *utility.Command) (string, error) {
	switch cmd.Op {
	case utility.OpPort:
		f.set(map[uint16]struct{}{cmd.Port: {}}, "port "+strconv.Itoa(int(cmd.Port)))
		return fmt.Sprintf("showing port %d", cmd.Port), nil

	case utility.OpPID:
		ports, err := f.lookup(cmd.PID)
		if err != nil {
			return "", err
		}
		if len(ports) == 0 {
			return "", fmt.Errorf("PID %d has no open ports", cmd.PID)
		}
		set := make(map[uint16]struct{}, len(ports))
		for _, p := range ports {
			set[p] = struct{}{}
		}
		f.set(set, "pid "+strconv.Itoa(int(cmd.PID)))
		return fmt.Sprintf("showing PID %d (ports %s)", cmd.PID, joinPorts(ports)), nil

	case utility.OpClear:
		f.set(nil, "")
		return "filter cleared", nil

	case utility.OpPause, utility.OpResume:
		f.mu.Lock()
		f.paused = cmd.Op == utility.OpPause
		f.mu.Unlock()
		if cmd.Op == utility.OpPause {
			return "paused", nil
		}
		return "resumed", nil
	}
	return "", fmt.Errorf("unsupported command %s", cmd.Op)
}

// Describe returns the active filter for the pane title.
func (f *Filter) Describe() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.label
	if s == "" {
		s = "all"
	}
	if f.paused {
		s += ", paused"
	}
	return s
}

func (f *Filter) set(ports map[uint16]struct{}, label string) {
	f.mu.Lock()
	f.ports = ports
	f.label = label
	f.mu.Unlock()
}

func joinPorts(ports []uint16) string {
	sorted := append([]uint16(nil), ports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}
