// Package capture feeds frames from a live interface or a pcap file through
// the in-process classifier.
package capture

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrLinkType is returned for sources whose frames are not Ethernet.
	ErrLinkType = errors.New("capture: link type is not ethernet")
	// ErrTimeout marks a read that returned nothing within the poll timeout.
	ErrTimeout = errors.New("capture: read timeout")
	// ErrUnsupported is returned where live capture is unavailable.
	ErrUnsupported = errors.New("capture: live capture not supported on this platform")
)

// Source yields raw frames.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close()
}

// LiveConfig describes an AF_PACKET capture.
type LiveConfig struct {
	Device       string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
}
