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

// Package fotacrypto provides the concrete Hasher and SignatureVerifier
// implementations consumed by the update engine. None of this is
// hardware-specific: it runs identically under tamago and the host
// toolchain.
package fotacrypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// SHA256Hasher implements update.Hasher using the standard library's
// SHA-256.
type SHA256Hasher struct {
	h hash.Hash
}

// NewSHA256Hasher returns a ready-to-use SHA-256 Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// Begin implements update.Hasher.
func (s *SHA256Hasher) Begin() {
	s.h = sha256.New()
}

// AddData implements update.Hasher.
func (s *SHA256Hasher) AddData(p []byte) {
	s.h.Write(p)
}

// End implements update.Hasher. SHA-256 has no separate finalization step
// beyond reading the digest, so this is a no-op.
func (s *SHA256Hasher) End() {}

// Digest implements update.Hasher.
func (s *SHA256Hasher) Digest() []byte {
	return s.h.Sum(nil)
}

// DigestLen implements update.Hasher.
func (s *SHA256Hasher) DigestLen() int {
	return sha256.Size
}

// Blake2bHasher implements update.Hasher using BLAKE2b-256, offered as a
// faster alternative on platforms without SHA-256 hardware acceleration.
type Blake2bHasher struct {
	h hash.Hash
}

// NewBlake2bHasher returns a ready-to-use BLAKE2b-256 Hasher.
func NewBlake2bHasher() *Blake2bHasher {
	return &Blake2bHasher{}
}

// Begin implements update.Hasher.
func (b *Blake2bHasher) Begin() {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a non-nil key longer than 64
		// bytes; we never pass a key.
		panic(err)
	}
	b.h = h
}

// AddData implements update.Hasher.
func (b *Blake2bHasher) AddData(p []byte) {
	b.h.Write(p)
}

// End implements update.Hasher.
func (b *Blake2bHasher) End() {}

// Digest implements update.Hasher.
func (b *Blake2bHasher) Digest() []byte {
	return b.h.Sum(nil)
}

// DigestLen implements update.Hasher.
func (b *Blake2bHasher) DigestLen() int {
	return blake2b.Size256
}
