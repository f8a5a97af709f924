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
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// fakeFlash is an in-memory FlashTarget double with two slots, used by
// this package's own tests. It is intentionally separate from the
// internal/flashtarget implementation so that update's tests do not
// depend on that package.
type fakeFlash struct {
	slots       [2][]byte
	active      Slot
	nextHandle  Handle
	sessions    map[Handle]*session
	failOpen    error
	failWrite   error
	failClose   error
	failRead    error
	failResolve error
}

type session struct {
	slot Slot
	buf  []byte
}

func newFakeFlash() *fakeFlash {
	return &fakeFlash{sessions: map[Handle]*session{}}
}

func (f *fakeFlash) OpenSession(slot Slot, sizeHint int64) (Handle, error) {
	if f.failOpen != nil {
		return 0, f.failOpen
	}
	f.nextHandle++
	f.sessions[f.nextHandle] = &session{slot: slot}
	return f.nextHandle, nil
}

func (f *fakeFlash) WriteSession(h Handle, p []byte) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	s, ok := f.sessions[h]
	if !ok {
		return errors.New("fakeFlash: unknown handle")
	}
	s.buf = append(s.buf, p...)
	return nil
}

func (f *fakeFlash) CloseSession(h Handle) error {
	if f.failClose != nil {
		return f.failClose
	}
	s, ok := f.sessions[h]
	if !ok {
		return errors.New("fakeFlash: unknown handle")
	}
	f.slots[s.slot] = s.buf
	delete(f.sessions, h)
	return nil
}

func (f *fakeFlash) Read(slot Slot, offset, length int64) ([]byte, error) {
	if f.failRead != nil {
		return nil, f.failRead
	}
	data := f.slots[slot]
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, fmt.Errorf("fakeFlash: read [%d,%d) out of bounds (len %d)", offset, offset+length, len(data))
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}

func (f *fakeFlash) ResolveInactiveSlot() (Slot, error) {
	if f.failResolve != nil {
		return 0, f.failResolve
	}
	if f.active == 0 {
		return 1, nil
	}
	return 0, nil
}

// fakeBoot is an in-memory BootSelector double.
type fakeBoot struct {
	calls []Slot
	fail  error
}

func (b *fakeBoot) SetBoot(slot Slot) error {
	if b.fail != nil {
		return b.fail
	}
	b.calls = append(b.calls, slot)
	return nil
}

// fakeHasher is a Hasher backed by SHA-256, used so appendix tests don't
// depend on the internal/fotacrypto package.
type fakeHasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func newFakeHasher() *fakeHasher { return &fakeHasher{} }

func (h *fakeHasher) Begin() { h.h = sha256.New() }

func (h *fakeHasher) AddData(p []byte) { h.h.Write(p) }

func (h *fakeHasher) End() {}

func (h *fakeHasher) Digest() []byte { return h.h.Sum(nil) }

func (h *fakeHasher) DigestLen() int { return sha256.Size }

// fakeVerifier accepts a digest if and only if it is byte-for-byte equal
// to signature — i.e. it treats signature as the expected digest, which is
// enough to exercise both the success and failure paths without needing
// real asymmetric crypto in this package's own tests.
type fakeVerifier struct{}

func (fakeVerifier) Verify(digest, signature []byte) error {
	if len(digest) != len(signature) {
		return errors.New("fakeVerifier: length mismatch")
	}
	for i := range digest {
		if digest[i] != signature[i] {
			return errors.New("fakeVerifier: mismatch")
		}
	}
	return nil
}

// buildSignedImage constructs body ++ magic ++ signature ++ len(signature)
// as a little-endian uint32, where signature is simply sha256(body++magic)
// so that fakeVerifier accepts it.
func buildSignedImage(body, magic []byte) []byte {
	h := sha256.Sum256(append(append([]byte{}, body...), magic...))
	sig := h[:]
	img := append([]byte{}, body...)
	img = append(img, magic...)
	img = append(img, sig...)
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(sig)))
	img = append(img, lenBuf...)
	return img
}
