// Copyright 2022 The Armored Witness Applet authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flashtarget

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// Geometry describes the physical layout of a Partition and its slots on
// the underlying block storage.
type Geometry struct {
	// Start identifies the block address of the first block in the
	// partition.
	Start uint
	// Length is the number of blocks covered by the partition, i.e.
	// [Start, Start+Length) is the range of blocks it covers.
	Length uint
	// SlotLengths is an ordered list of the lengths, in blocks, of the
	// slot(s) allocated within this partition.
	SlotLengths []uint
}

// Validate checks that the geometry is self-consistent: the slots must
// fit within the overall partition length.
func (g Geometry) Validate() error {
	t := uint(0)
	for _, l := range g.SlotLengths {
		t += l
	}
	if t > g.Length {
		return fmt.Errorf("invalid geometry: total slot length (%d blocks) exceeds overall length (%d blocks)", t, g.Length)
	}
	return nil
}

// Partition describes the extent and layout of a single contiguous region
// of underlying block storage, divided into one or more slots.
type Partition struct {
	dev   BlockDevice
	slots []*Slot
}

// OpenPartition returns a Partition for accessing the slots described by
// geo, backed by dev.
func OpenPartition(dev BlockDevice, geo Geometry) (*Partition, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	p := &Partition{dev: dev}

	b := geo.Start
	for _, l := range geo.SlotLengths {
		p.slots = append(p.slots, &Slot{
			dev:    dev,
			start:  b,
			length: l,
		})
		b += l
	}

	return p, nil
}

// NumSlots returns the number of slots configured in this partition.
func (p *Partition) NumSlots() int {
	return len(p.slots)
}

// Open returns the slot at the given index, or an error if it is out of
// bounds.
func (p *Partition) Open(slot uint) (*Slot, error) {
	if l := uint(len(p.slots)); slot >= l {
		return nil, fmt.Errorf("invalid slot %d (partition has %d slots)", slot, l)
	}
	return p.slots[slot], nil
}

// Slot represents one streamable, randomly-readable region of flash.
//
// A Slot is used in two, non-overlapping modes: as a streaming sink while
// a firmware image is being written (Erase, then repeated Append, then
// Close), and as a random-access source once the image is complete
// (ReadAt). Callers must Close a streaming session before relying on
// ReadAt to see the written data, since the final partial block is
// buffered in memory until Close flushes it.
type Slot struct {
	mu sync.Mutex

	dev    BlockDevice
	start  uint // first block belonging to this slot
	length uint // number of blocks in this slot

	// streaming state, valid between Erase and Close.
	open    bool
	cursor  uint   // next block, relative to start, to be written
	pending []byte // bytes accumulated since the last full block write

	bytesWritten int64
}

// SizeUnknown mirrors update.SizeUnknown for callers that only have this
// package imported; Erase treats it identically to the engine's
// SizeUnknown constant.
const SizeUnknown int64 = -1

// Erase prepares the slot for a new streaming write session: it zeroes
// either sizeHint bytes (rounded up to a whole number of blocks) or, if
// sizeHint is SizeUnknown, the entire slot, and resets the write cursor to
// the start of the slot.
func (s *Slot) Erase(sizeHint int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := int64(s.dev.BlockSize())
	var eraseBlocks uint
	if sizeHint < 0 {
		eraseBlocks = s.length
	} else {
		eraseBlocks = uint((sizeHint + bs - 1) / bs)
		if eraseBlocks > s.length {
			eraseBlocks = s.length
		}
	}

	klog.V(2).Infof("flashtarget: erasing %d blocks of slot @ block %d", eraseBlocks, s.start)
	zero := make([]byte, eraseBlocks*uint(bs))
	if _, err := s.dev.WriteBlocks(s.start, zero); err != nil {
		return fmt.Errorf("erase: %w", err)
	}

	s.open = true
	s.cursor = 0
	s.pending = nil
	s.bytesWritten = 0
	return nil
}

// Append writes p to the slot, continuing from wherever the previous
// Append (or Erase) call left off. Erase must have been called first.
func (s *Slot) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("flashtarget: Append called before Erase")
	}

	if remaining := int64(s.length-s.cursor)*int64(s.dev.BlockSize()) - int64(len(s.pending)); int64(len(p)) > remaining {
		return fmt.Errorf("flashtarget: write of %d bytes exceeds remaining slot capacity (%d bytes)", len(p), remaining)
	}

	s.pending = append(s.pending, p...)
	bs := s.dev.BlockSize()

	fullBlocks := uint(len(s.pending)) / bs
	if fullBlocks > 0 {
		toWrite := s.pending[:fullBlocks*bs]
		if _, err := s.dev.WriteBlocks(s.start+s.cursor, toWrite); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		s.cursor += fullBlocks
		s.pending = append([]byte{}, s.pending[fullBlocks*bs:]...)
	}

	s.bytesWritten += int64(len(p))
	return nil
}

// Close flushes any partial block still buffered in memory (zero-padded)
// and ends the streaming session. It is idempotent.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	if len(s.pending) > 0 {
		if _, err := s.dev.WriteBlocks(s.start+s.cursor, s.pending); err != nil {
			return fmt.Errorf("flush final block: %w", err)
		}
		s.cursor++
		s.pending = nil
	}
	s.open = false
	return nil
}

// BytesWritten returns the number of bytes Appended since the last Erase.
func (s *Slot) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}

// ReadAt performs a random-access read of length bytes at offset within
// the slot. The caller must have Closed any streaming session first.
func (s *Slot) ReadAt(offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := int64(s.dev.BlockSize())
	if offset < 0 || length < 0 || offset+length > int64(s.length)*bs {
		return nil, fmt.Errorf("flashtarget: read [%d,%d) out of bounds for slot of %d blocks", offset, offset+length, s.length)
	}

	firstBlock := uint(offset / bs)
	lastBlock := uint((offset + length - 1) / bs)
	blockSpan := lastBlock - firstBlock + 1

	buf := make([]byte, blockSpan*uint(bs))
	if err := s.dev.ReadBlocks(s.start+firstBlock, buf); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	skip := offset - int64(firstBlock)*bs
	return buf[skip : skip+length], nil
}
