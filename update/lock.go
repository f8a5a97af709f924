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

package update

import "sync"

// Lock is a process-wide "an update is in progress" flag: a single
// boolean guarded by a mutex, with the invariant that at most one
// Transaction exists across every Engine sharing this Lock at any
// instant.
//
// The flash and boot-selector hardware behind a Flash Target is a
// singleton resource, so in firmware this is usually a single static
// Lock shared by every Engine in the process (see DefaultLock). Tests
// construct their own Lock via NewLock to avoid cross-test interference.
type Lock struct {
	mu      sync.Mutex
	running bool
}

// NewLock returns a new, unheld Lock.
func NewLock() *Lock {
	return &Lock{}
}

// DefaultLock is the process-wide Lock used by Engines constructed with
// NewEngine. Firmware has exactly one Flash Target and one Boot Selector
// singleton per device, so this default models that reality directly.
var DefaultLock = NewLock()

// TryAcquire acquires the lock if it is not already held, returning true
// on success. It never blocks.
func (l *Lock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	return true
}

// Release releases the lock. Calling Release when the lock is not held is
// a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}

// IsRunning reports whether the lock is currently held. This is an
// advisory, point-in-time snapshot: it may be stale by the time the
// caller acts on it.
func (l *Lock) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
