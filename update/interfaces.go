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

// Package update implements the dual-slot firmware update transaction
// engine: exclusive acquisition of the update capability, streamed writes
// into a flash target, appendix verification, and the atomic boot-selector
// commit.
//
// The Flash Target, Boot Selector, Hasher and Signature Verifier contracts
// below are deliberately narrow interfaces: this package only consumes
// them, it does not choose which concrete implementation backs them. See
// the internal/flashtarget, internal/bootselector and internal/fotacrypto
// packages for the implementations used by this repository.
package update

// Slot identifies one of the (typically two) fixed flash regions that can
// hold a bootable firmware image.
type Slot uint

// Handle is an opaque token identifying a streaming write session opened
// on a Flash Target.
type Handle uint64

// SizeUnknown is passed to Begin when the caller does not know the final
// image size ahead of time. A Flash Target receiving SizeUnknown as a
// size hint erases the entire slot rather than just the first
// size-hint bytes of it.
const SizeUnknown int64 = -1

// FlashTarget abstracts a specific dual-slot flash device: a bounded-size
// erase/write-append surface with random-access read back, addressed
// logically by Slot rather than by physical address.
type FlashTarget interface {
	// OpenSession erases sizeHint bytes (or the whole slot if sizeHint is
	// SizeUnknown) and prepares the slot for streaming append, returning a
	// handle for subsequent WriteSession/CloseSession calls.
	OpenSession(slot Slot, sizeHint int64) (Handle, error)
	// WriteSession appends p to the session identified by h.
	WriteSession(h Handle, p []byte) error
	// CloseSession finalizes the session identified by h.
	CloseSession(h Handle) error
	// Read performs a random-access read of length bytes at offset within
	// slot. It never mutates the slot.
	Read(slot Slot, offset int64, length int64) ([]byte, error)
	// ResolveInactiveSlot returns the slot which is not currently booted.
	ResolveInactiveSlot() (Slot, error)
}

// BootSelector marks a flash slot as the next boot source. The operation
// is assumed atomic by the underlying platform: across a power loss at any
// point before SetBoot returns successfully, the previously active slot
// remains selected.
type BootSelector interface {
	SetBoot(slot Slot) error
}

// Hasher is a streaming digest: Begin, then zero or more AddData calls,
// then End, after which Digest and DigestLen describe the result. A
// Hasher instance is reused across its begin/end cycle only; Begin resets
// any state left over from a previous cycle.
type Hasher interface {
	Begin()
	AddData(p []byte)
	End()
	Digest() []byte
	DigestLen() int
}

// SignatureVerifier checks a detached signature over a digest produced by
// a Hasher. Verify returns nil if and only if signature is a valid
// signature over digest.
type SignatureVerifier interface {
	Verify(digest, signature []byte) error
}

// ByteSink is the narrow surface fed bytes by an external downloader
// while a transaction is in progress. An Engine satisfies this interface
// directly.
type ByteSink interface {
	Write(p []byte) error
}
