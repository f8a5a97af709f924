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

	"github.com/usbarmory/armory-fota-updater/update"
)

// ActiveSlotSource reports which slot the platform currently boots from.
// internal/bootselector.Selector implements this; Target depends on the
// interface rather than the concrete type to keep the two packages
// decoupled.
type ActiveSlotSource interface {
	ActiveSlot() (update.Slot, error)
}

// Target adapts a two-slot Partition to the update.FlashTarget contract,
// tracking open streaming sessions by handle.
type Target struct {
	mu        sync.Mutex
	partition *Partition
	active    ActiveSlotSource

	nextHandle update.Handle
	sessions   map[update.Handle]*Slot
}

// NewTarget returns a Target backed by dev, laid out according to geo,
// reporting the active slot via active. geo must describe exactly two
// slots: this repository's dual-slot update model has no use for any
// other count.
func NewTarget(dev BlockDevice, geo Geometry, active ActiveSlotSource) (*Target, error) {
	p, err := OpenPartition(dev, geo)
	if err != nil {
		return nil, err
	}
	if n := p.NumSlots(); n != 2 {
		return nil, fmt.Errorf("flashtarget: dual-slot update requires exactly 2 slots, geometry describes %d", n)
	}
	return &Target{
		partition: p,
		active:    active,
		sessions:  make(map[update.Handle]*Slot),
	}, nil
}

// OpenSession implements update.FlashTarget.
func (t *Target) OpenSession(slot update.Slot, sizeHint int64) (update.Handle, error) {
	s, err := t.partition.Open(uint(slot))
	if err != nil {
		return 0, err
	}
	if err := s.Erase(sizeHint); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextHandle++
	h := t.nextHandle
	t.sessions[h] = s
	return h, nil
}

// WriteSession implements update.FlashTarget.
func (t *Target) WriteSession(h update.Handle, p []byte) error {
	s, err := t.sessionFor(h)
	if err != nil {
		return err
	}
	return s.Append(p)
}

// CloseSession implements update.FlashTarget.
func (t *Target) CloseSession(h update.Handle) error {
	s, err := t.sessionFor(h)
	if err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.sessions, h)
	t.mu.Unlock()

	return s.Close()
}

// Read implements update.FlashTarget.
func (t *Target) Read(slot update.Slot, offset, length int64) ([]byte, error) {
	s, err := t.partition.Open(uint(slot))
	if err != nil {
		return nil, err
	}
	return s.ReadAt(offset, length)
}

// ResolveInactiveSlot implements update.FlashTarget.
func (t *Target) ResolveInactiveSlot() (update.Slot, error) {
	active, err := t.active.ActiveSlot()
	if err != nil {
		return 0, err
	}

	n := update.Slot(t.partition.NumSlots())
	for s := update.Slot(0); s < n; s++ {
		if s != active {
			return s, nil
		}
	}
	return 0, fmt.Errorf("flashtarget: no inactive slot distinct from active slot %d", active)
}

func (t *Target) sessionFor(h update.Handle) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[h]
	if !ok {
		return nil, fmt.Errorf("flashtarget: unknown or closed session handle %d", h)
	}
	return s, nil
}
