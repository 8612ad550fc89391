package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FileSource replays a pcap or pcapng file.
type FileSource struct {
	f  *os.File
	rd packetReader
}

// OpenFile opens path, detecting pcap vs pcapng from the magic number.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read pcap header %s: %w", path, err)
	}

	var rd packetReader
	if isPcapNG(magic) {
		rd, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		rd, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse pcap %s: %w", path, err)
	}
	return &FileSource{f: f, rd: rd}, nil
}

func isPcapNG(magic []byte) bool {
	return len(magic) == 4 && magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a
}

func (s *FileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.rd.ReadPacketData()
	if err == io.EOF {
		return nil, ci, io.EOF
	}
	return data, ci, err
}

func (s *FileSource) LinkType() layers.LinkType {
	return s.rd.LinkType()
}

func (s *FileSource) Close() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
}
