package utility

import (
	"fmt"
	"slices"
	"syscall"

	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// GetPortsByPID returns the sorted, distinct local TCP ports held by pid.
// Only TCP sockets matter: nothing else can take part in a handshake.
func GetPortsByPID(pid int32) ([]uint16, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle for PID %d: %w", pid, err)
	}

	conns, err := p.Connections()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connections for PID %d: %w", pid, err)
	}
	return tcpLocalPorts(conns), nil
}

func tcpLocalPorts(conns []net.ConnectionStat) []uint16 {
	seen := make(map[uint16]struct{}, len(conns))
	for _, c := range conns {
		if c.Type != syscall.SOCK_STREAM {
			continue
		}
		if c.Laddr.Port == 0 || c.Laddr.Port > 0xffff {
			continue
		}
		seen[uint16(c.Laddr.Port)] = struct{}{}
	}

	ports := make([]uint16, 0, len(seen))
	for port := range seen {
		ports = append(ports, port)
	}
	slices.Sort(ports)
	return ports
}
