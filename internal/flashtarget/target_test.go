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
	"bytes"
	"testing"

	"github.com/usbarmory/armory-fota-updater/internal/flashtarget/testonly"
	"github.com/usbarmory/armory-fota-updater/update"
)

type fakeActiveSlotSource struct {
	slot update.Slot
	err  error
}

func (f fakeActiveSlotSource) ActiveSlot() (update.Slot, error) {
	return f.slot, f.err
}

func newTestTarget(t *testing.T, active update.Slot) *Target {
	t.Helper()
	dev := testonly.NewMemDev(8)
	tg, err := NewTarget(dev, Geometry{Start: 0, Length: 8, SlotLengths: []uint{4, 4}}, fakeActiveSlotSource{slot: active})
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return tg
}

func TestNewTargetRejectsWrongSlotCount(t *testing.T) {
	dev := testonly.NewMemDev(12)
	_, err := NewTarget(dev, Geometry{Start: 0, Length: 12, SlotLengths: []uint{4, 4, 4}}, fakeActiveSlotSource{})
	if err == nil {
		t.Fatalf("NewTarget with 3 slots succeeded, want error")
	}
}

func TestResolveInactiveSlot(t *testing.T) {
	tg := newTestTarget(t, update.Slot(0))
	got, err := tg.ResolveInactiveSlot()
	if err != nil {
		t.Fatalf("ResolveInactiveSlot: %v", err)
	}
	if got != update.Slot(1) {
		t.Fatalf("ResolveInactiveSlot = %d, want 1", got)
	}
}

func TestTargetSessionLifecycle(t *testing.T) {
	tg := newTestTarget(t, update.Slot(1))

	h, err := tg.OpenSession(update.Slot(0), update.SizeUnknown)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	data := []byte("firmware payload")
	if err := tg.WriteSession(h, data); err != nil {
		t.Fatalf("WriteSession: %v", err)
	}
	if err := tg.CloseSession(h); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	got, err := tg.Read(update.Slot(0), 0, int64(len(data)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Read = %q, want %q", got, data)
	}

	// The handle is no longer valid after close.
	if err := tg.WriteSession(h, []byte("x")); err == nil {
		t.Fatalf("WriteSession on closed handle succeeded, want error")
	}
}

func TestTargetUnknownHandle(t *testing.T) {
	tg := newTestTarget(t, update.Slot(0))
	if err := tg.WriteSession(update.Handle(999), []byte("x")); err == nil {
		t.Fatalf("WriteSession on unknown handle succeeded, want error")
	}
	if err := tg.CloseSession(update.Handle(999)); err == nil {
		t.Fatalf("CloseSession on unknown handle succeeded, want error")
	}
}
