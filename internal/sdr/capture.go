package sdr

import (
	"context"
	"errors"
	"fmt"

	"github.com/roman-kulish/radio-telescope/internal/driver"
)

const (
	// ChannelsDirect is the number of values per sample in direct-sampling mode
	ChannelsDirect = 1

	// ChannelsIQ is the number of values per sample in I/Q mode
	ChannelsIQ = 2

	// staleBlocks is the number of leading blocks holding pre-request samples
	staleBlocks = 1
)

// ErrShortCapture is returned when the acquisition primitive delivers a
// different number of blocks than requested
var ErrShortCapture = errors.New("short capture")

// Buffer holds raw 8-bit samples in row-major (block, sample[, channel]) order.
type Buffer struct {
	BlockSize  int    // Samples per block
	BlockCount int    // Number of blocks
	Channels   int    // 1 for direct sampling, 2 for I/Q
	Samples    []int8 // BlockCount * BlockSize * Channels values
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(blockSize, blockCount, channels int) *Buffer {
	return &Buffer{
		BlockSize:  blockSize,
		BlockCount: blockCount,
		Channels:   channels,
		Samples:    make([]int8, blockSize*blockCount*channels),
	}
}

// Direct reports whether the buffer holds real-valued samples
func (b *Buffer) Direct() bool {
	return b.Channels == ChannelsDirect
}

// Shape returns (blocks, blockSize) for direct sampling or
// (blocks, blockSize, 2) for I/Q.
func (b *Buffer) Shape() []int {
	if b.Direct() {
		return []int{b.BlockCount, b.BlockSize}
	}
	return []int{b.BlockCount, b.BlockSize, b.Channels}
}

// BlockLen returns the number of int8 values in a single block
func (b *Buffer) BlockLen() int {
	return b.BlockSize * b.Channels
}

// Block returns the i-th block; the slice aliases the buffer
func (b *Buffer) Block(i int) []int8 {
	n := b.BlockLen()
	return b.Samples[i*n : (i+1)*n]
}

// Validate checks that the sample slice matches the declared shape
func (b *Buffer) Validate() error {
	if b.BlockSize <= 0 || b.BlockCount <= 0 {
		return fmt.Errorf("sdr.Buffer: invalid shape %v", b.Shape())
	}
	if b.Channels != ChannelsDirect && b.Channels != ChannelsIQ {
		return fmt.Errorf("sdr.Buffer: invalid channel count: %d", b.Channels)
	}
	if want := b.BlockCount * b.BlockLen(); len(b.Samples) != want {
		return fmt.Errorf("sdr.Buffer: %d samples do not match shape %v", len(b.Samples), b.Shape())
	}
	return nil
}

// dropLeading returns a buffer without the first n blocks, sharing memory
func (b *Buffer) dropLeading(n int) *Buffer {
	return &Buffer{
		BlockSize:  b.BlockSize,
		BlockCount: b.BlockCount - n,
		Channels:   b.Channels,
		Samples:    b.Samples[n*b.BlockLen():],
	}
}

// CaptureClean captures exactly blockCount blocks acquired after the current
// receiver configuration took effect. It requests one extra block from the
// primitive and discards the first, which holds stale ring-buffer samples.
//
// Acquisition errors are propagated as is; nothing is retried.
func CaptureClean(ctx context.Context, rx Receiver, blockSize, blockCount int) (*Buffer, error) {
	if blockSize <= 0 || blockCount <= 0 {
		return nil, driver.NewConfigError(fmt.Sprintf("sdr: block size and count must be positive: %d x %d", blockCount, blockSize))
	}

	requested := blockCount + staleBlocks

	raw, err := rx.Capture(ctx, blockSize, requested)
	if err != nil {
		return nil, fmt.Errorf("capturing %d blocks: %w", requested, err)
	}
	if raw.BlockSize != blockSize || raw.BlockCount != requested {
		return nil, driver.NewAcquisitionError(rx.Device(),
			fmt.Errorf("%w: got %d x %d, want %d x %d", ErrShortCapture, raw.BlockCount, raw.BlockSize, requested, blockSize))
	}
	if err = raw.Validate(); err != nil {
		return nil, driver.NewAcquisitionError(rx.Device(), err)
	}

	clean := raw.dropLeading(staleBlocks)
	if clean.BlockCount != blockCount {
		return nil, driver.NewAcquisitionError(rx.Device(),
			fmt.Errorf("%w: %d clean blocks, want %d", ErrShortCapture, clean.BlockCount, blockCount))
	}

	return clean, nil
}
