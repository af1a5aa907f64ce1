package link

import (
	"fmt"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
)

// AFPacketOptions configures an AF_PACKET driver.
type AFPacketOptions struct {
	Interface    string
	SnapLen      int
	BufferSizeMB int
	QueueDepth   int
	PollTimeout  time.Duration
	// IgnoreSource drops frames sent from this address, which AF_PACKET
	// loops back for locally transmitted frames.
	IgnoreSource core.HardwareAddr
}

func (o *AFPacketOptions) applyDefaults() {
	if o.SnapLen <= 0 {
		o.SnapLen = 1522
	}
	if o.BufferSizeMB <= 0 {
		o.BufferSizeMB = 2
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 64
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 100 * time.Millisecond
	}
}

// recomputeSize recalculates the frame size, block size, and number of blocks
// to meet the AF_PACKET PACKET_MMAP alignment requirements within the target
// memory budget:
//  1. frameSize must be a multiple of TPACKET_ALIGNMENT (16 bytes)
//  2. blockSize must be a multiple of pageSize
//  3. blockSize must be a multiple of frameSize
//  4. blockSize * numBlocks should approximate ringBufferSizeMB
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16 // TPACKET_ALIGNMENT
	const tpacketHdrLen = 52    // TPACKET3_HDRLEN (approximate)

	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	blockSize = lcm(pageSize, frameSize)
	if blockSize < pageSize {
		blockSize = pageSize
	}
	const maxBlockSize = 4 * 1024 * 1024
	if blockSize > maxBlockSize {
		framesPerBlock := maxBlockSize / frameSize
		blockSize = ((framesPerBlock*frameSize + pageSize - 1) / pageSize) * pageSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
