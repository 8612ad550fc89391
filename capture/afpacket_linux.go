//go:build linux

package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
)

// LiveSource reads frames from a TPACKET_V3 ring.
type LiveSource struct {
	handle *afpacket.TPacket
}

// OpenLive opens an AF_PACKET ring on cfg.Device.
func OpenLive(cfg LiveConfig) (*LiveSource, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	timeout := cfg.TimeoutMs
	if timeout <= 0 {
		timeout = 100
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(timeoutDuration(timeout)),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket on %s: %w", cfg.Device, err)
	}
	return &LiveSource{handle: tp}, nil
}

func (s *LiveSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, ErrTimeout
	}
	return data, ci, err
}

func (s *LiveSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *LiveSource) Close() {
	s.handle.Close()
}
