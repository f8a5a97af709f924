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

import (
	"errors"
	"fmt"
)

// Error kinds returned by this package. FlashError is the exception: a
// write failure is surfaced verbatim from the Flash Target rather than
// wrapped in one of these sentinels, so that callers can inspect the
// underlying driver code.
var (
	// ErrBusy is returned by Begin and ActivateNextSlot when another
	// transaction already holds the process-wide update lock.
	ErrBusy = errors.New("update: busy, another transaction is active")

	// ErrNoSlot is returned when the Flash Target cannot resolve an
	// inactive slot.
	ErrNoSlot = errors.New("update: no inactive slot available")

	// ErrMalformed is returned when the appendix header is inconsistent
	// (the claimed signature length overflows the image).
	ErrMalformed = errors.New("update: malformed image appendix")

	// ErrMagicMismatch is returned when the configured magic sequence does
	// not match the bytes found at the expected offset.
	ErrMagicMismatch = errors.New("update: magic marker mismatch")

	// ErrSignatureInvalid is returned when the signature verifier rejects
	// the image body.
	ErrSignatureInvalid = errors.New("update: signature verification failed")

	// ErrBootSelectFailed is returned when the Boot Selector rejects a
	// slot.
	ErrBootSelectFailed = errors.New("update: boot selector failed")

	// ErrNotRunning is returned by operations that require an active
	// transaction when none is in progress.
	ErrNotRunning = errors.New("update: no transaction is active")

	// ErrAllocFailure is returned when a transient buffer could not be
	// allocated. Present for parity with constrained-RAM implementations;
	// this Go implementation relies on the runtime allocator and does not
	// itself return it, but consumers translating from a resource-limited
	// Flash Target or Hasher should map allocation failures to it.
	ErrAllocFailure = errors.New("update: transient buffer allocation failed")
)

// FlashError wraps a driver error returned by a Flash Target operation
// other than WriteSession (whose errors are surfaced verbatim, per the
// write() contract). It exists so that callers can still distinguish
// "the flash driver failed" from the other error kinds above while
// retaining the original error for inspection.
type FlashError struct {
	Op   string
	Code error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("update: flash error during %s: %v", e.Op, e.Code)
}

func (e *FlashError) Unwrap() error {
	return e.Code
}
