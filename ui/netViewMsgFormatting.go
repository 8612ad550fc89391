package ui

import (
	"bufio"
	"bytes"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"

	"synwatch/event"
	"synwatch/tccollector/utility"
)

const (
	timeColWidth     = 36 // width of the timestamp column
	kindColWidth     = 8  // "SYN" / "SYN-ACK"
	endpointColWidth = 48 // width of each "addr:port (PROTO)" column
)

// pool holds reusable *bytes.Buffer instances
var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// services maps well-known TCP ports → protocol name (e.g. 443 -> "HTTPS")
var services = loadServices("/etc/services")

func loadServices(path string) map[uint16]string {
	m := make(map[uint16]string)
	f, err := os.Open(path)
	if err != nil {
		return m // skip protocol lookup if we can't read file
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		portProto := strings.Split(fields[1], "/")
		if len(portProto) != 2 || portProto[1] != "tcp" {
			continue
		}
		port, err := strconv.ParseUint(portProto[0], 10, 16)
		if err != nil {
			continue
		}
		if _, dup := m[uint16(port)]; !dup {
			m[uint16(port)] = strings.ToUpper(fields[0])
		}
	}
	return m
}

func getService(port uint16) string {
	return services[port]
}

// FormatEventLine builds a fixed-width line for one handshake event:
// time, kind, source and destination endpoints.
func FormatEventLine(ev event.Handshake) string {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	writePadded(buf, utility.FormatMonotonic(ev.Timestamp), timeColWidth)
	buf.WriteByte(' ')
	writePadded(buf, ev.Kind(), kindColWidth)
	buf.WriteByte(' ')

	start := buf.Len()
	writeEndpoint(buf, ev.Src())
	writePadding(buf, endpointColWidth-(buf.Len()-start))

	buf.WriteString(" -> ")
	writeEndpoint(buf, ev.Dst())

	result := buf.String()
	bufPool.Put(buf)
	return result
}

// writeEndpoint writes addr:port, bracketing IPv6 addresses, followed by
// the service name when one is known.
func writeEndpoint(buf *bytes.Buffer, ap netip.AddrPort) {
	buf.WriteString(ap.String())
	if svc := getService(ap.Port()); svc != "" {
		buf.WriteString(" (")
		buf.WriteString(svc)
		buf.WriteByte(')')
	}
}

// writePadded writes s left-aligned in a field of width w
func writePadded(buf *bytes.Buffer, s string, w int) {
	buf.WriteString(s)
	writePadding(buf, w-len(s))
}

// writePadding writes n spaces (n ≤ 0 → no op)
func writePadding(buf *bytes.Buffer, n int) {
	for n > 0 {
		const chunk = "          " // 10 spaces
		if n >= len(chunk) {
			buf.WriteString(chunk)
			n -= len(chunk)
		} else {
			buf.WriteString(chunk[:n])
			return
		}
	}
}
