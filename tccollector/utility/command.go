package utility

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode is a TUI command applied to the event view.
type Opcode int

const (
	OpPort   Opcode = iota + 1 // show only events touching a port
	OpPID                      // show only events touching a process's ports
	OpClear                    // drop the active filter
	OpPause                    // stop appending events to the view
	OpResume                   // resume appending events
)

func (o Opcode) String() string {
	switch o {
	case OpPort:
		return "port"
	case OpPID:
		return "pid"
	case OpClear:
		return "clear"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	default:
		return "unknown"
	}
}

type Command struct {
	Op   Opcode
	Port uint16 // for port
	PID  int32  // for pid
}

func ParseCommand(input string) (*Command, error) {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	switch parts[0] {
	case "port":
		if len(parts) != 2 {
			return nil, fmt.Errorf("usage: port <number>")
		}
		v, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("invalid port %q", parts[1])
		}
		return &Command{Op: OpPort, Port: uint16(v)}, nil

	case "pid":
		if len(parts) != 2 {
			return nil, fmt.Errorf("usage: pid <number>")
		}
		pid, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("invalid PID %q", parts[1])
		}
		return &Command{Op: OpPID, PID: int32(pid)}, nil

	case "clear", "pause", "resume":
		if len(parts) != 1 {
			return nil, fmt.Errorf("%s takes no arguments", parts[0])
		}
		op := map[string]Opcode{"clear": OpClear, "pause": OpPause, "resume": OpResume}[parts[0]]
		return &Command{Op: op}, nil

	default:
		return nil, fmt.Errorf("unknown op %q", parts[0])
	}
}
