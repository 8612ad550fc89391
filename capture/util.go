package capture

import (
	"fmt"
	"time"
)

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 68 // TPACKET3_HDRLEN: tpacket3_hdr + sockaddr_ll
)

// recomputeSize derives AF_PACKET PACKET_MMAP ring geometry from a buffer
// budget. The kernel requires:
//  1. frameSize a multiple of TPACKET_ALIGNMENT, with room for the header
//  2. blockSize a multiple of pageSize
//  3. blockSize a multiple of frameSize
//
// blockSize is lcm(pageSize, frameSize); numBlocks is as many blocks as fit
// the budget.
func recomputeSize(bufferSizeMB, snaplen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferSizeMB)
	}
	if snaplen <= 0 {
		return 0, 0, 0, fmt.Errorf("snaplen must be positive, got %d", snaplen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snaplen, tpacketAlignment)
	blockSize = lcm(pageSize, frameSize)

	numBlocks = (bufferSizeMB * 1024 * 1024) / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("buffer size %d MB is smaller than one block (%d bytes)", bufferSizeMB, blockSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// gcd computes the greatest common divisor of two integers
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm computes the least common multiple of two integers
func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

func timeoutDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
