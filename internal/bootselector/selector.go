// Copyright 2022 The Armored Witness OS authors. All Rights Reserved.
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

// Package bootselector persists the Active-Slot Record: the single bit of
// state that survives a power loss and tells the bootloader which of the
// two firmware slots to start next.
//
// The record is written redundantly to two fixed blocks so that a power
// loss mid-write never leaves both copies corrupt: SetBoot always writes
// the copy that is NOT the one that was read as current, then only
// considers the write durable once it has returned.
package bootselector

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"k8s.io/klog/v2"

	"github.com/usbarmory/armory-fota-updater/update"
)

// recordMagic tags a block as holding a valid Active-Slot Record, as
// opposed to an erased or foreign block.
const recordMagic = 0x464f5441 // "FOTA"

// recordSize is the on-disk size, in bytes, of one Active-Slot Record.
// It is deliberately much smaller than a typical flash block; callers pad
// up to BlockDevice.BlockSize() when writing.
const recordSize = 16

// BlockDevice is the minimal storage surface the selector needs: random
// access by block, at a known block size. internal/flashtarget.BlockDevice
// satisfies this, but bootselector does not import that package, to avoid
// a dependency cycle between the two internal packages.
type BlockDevice interface {
	BlockSize() uint
	ReadBlocks(lba uint, b []byte) error
	WriteBlocks(lba uint, b []byte) (uint, error)
}

// Selector implements update.BootSelector and flashtarget.ActiveSlotSource
// on top of two fixed, redundant blocks of a BlockDevice.
type Selector struct {
	mu  sync.Mutex
	dev BlockDevice

	// blockA and blockB are the two block addresses holding redundant
	// copies of the Active-Slot Record.
	blockA, blockB uint

	// cached is the most recently read or written generation/slot pair,
	// avoiding a device read on every ActiveSlot call.
	cached  *record
	primary uint // which of blockA/blockB currently holds the newest record
}

type record struct {
	generation uint32
	slot       update.Slot
}

// New returns a Selector persisting its state to blockA and blockB of dev.
// The two blocks must be distinct and are assumed to have already been
// reserved by the caller's partition layout; New does not erase anything.
func New(dev BlockDevice, blockA, blockB uint) (*Selector, error) {
	if blockA == blockB {
		return nil, fmt.Errorf("bootselector: blockA and blockB must be distinct block addresses, got %d twice", blockA)
	}
	s := &Selector{dev: dev, blockA: blockA, blockB: blockB}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads both copies of the record and adopts the newest valid one,
// falling back to slot 0 generation 0 if neither copy is valid (first
// boot on unprogrammed storage).
func (s *Selector) load() error {
	a, aOK := s.readRecord(s.blockA)
	b, bOK := s.readRecord(s.blockB)

	switch {
	case aOK && bOK:
		if a.generation >= b.generation {
			s.cached, s.primary = &a, s.blockA
		} else {
			s.cached, s.primary = &b, s.blockB
		}
	case aOK:
		s.cached, s.primary = &a, s.blockA
	case bOK:
		s.cached, s.primary = &b, s.blockB
	default:
		klog.Infof("bootselector: no valid Active-Slot Record found, defaulting to slot 0")
		s.cached, s.primary = &record{generation: 0, slot: 0}, s.blockA
	}
	return nil
}

func (s *Selector) readRecord(block uint) (record, bool) {
	buf := make([]byte, s.dev.BlockSize())
	if err := s.dev.ReadBlocks(block, buf); err != nil {
		klog.Warningf("bootselector: ReadBlocks(%d): %v", block, err)
		return record{}, false
	}
	if len(buf) < recordSize {
		return record{}, false
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != recordMagic {
		return record{}, false
	}
	gen := binary.LittleEndian.Uint32(buf[4:8])
	slot := binary.LittleEndian.Uint32(buf[8:12])
	sum := binary.LittleEndian.Uint32(buf[12:16])
	if crc32.ChecksumIEEE(buf[0:12]) != sum {
		klog.Warningf("bootselector: CRC mismatch reading block %d, ignoring", block)
		return record{}, false
	}
	return record{generation: gen, slot: update.Slot(slot)}, true
}

// ActiveSlot implements flashtarget.ActiveSlotSource.
func (s *Selector) ActiveSlot() (update.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return 0, fmt.Errorf("bootselector: no record loaded")
	}
	return s.cached.slot, nil
}

// SetBoot implements update.BootSelector. It writes the new record to
// whichever of the two blocks is NOT currently primary, then only commits
// the new cached state once that write returns successfully. A power
// failure during the write leaves the old, still-valid copy in the other
// block, so the device continues to boot the previous slot.
func (s *Selector) SetBoot(slot update.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := record{slot: slot}
	if s.cached != nil {
		next.generation = s.cached.generation + 1
	}

	target := s.blockB
	if s.primary == s.blockB {
		target = s.blockA
	}

	buf := make([]byte, s.dev.BlockSize())
	binary.LittleEndian.PutUint32(buf[0:4], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:8], next.generation)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(next.slot))
	binary.LittleEndian.PutUint32(buf[12:16], crc32.ChecksumIEEE(buf[0:12]))

	if _, err := s.dev.WriteBlocks(target, buf); err != nil {
		return fmt.Errorf("bootselector: WriteBlocks(%d): %w", target, err)
	}

	s.cached = &next
	s.primary = target
	klog.Infof("bootselector: active slot set to %d (generation %d)", slot, next.generation)
	return nil
}
