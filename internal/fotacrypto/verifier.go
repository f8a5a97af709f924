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

package fotacrypto

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
)

// RSAPSSVerifier implements update.SignatureVerifier using RSA-PSS over a
// SHA-256 digest, matching the signing scheme used by this repository's
// lineage of firmware-build toolchains.
type RSAPSSVerifier struct {
	pub *rsa.PublicKey
}

// NewRSAPSSVerifier returns a verifier checking signatures against pub.
func NewRSAPSSVerifier(pub *rsa.PublicKey) *RSAPSSVerifier {
	return &RSAPSSVerifier{pub: pub}
}

// Verify implements update.SignatureVerifier.
func (v *RSAPSSVerifier) Verify(digest, signature []byte) error {
	if err := rsa.VerifyPSS(v.pub, crypto.SHA256, digest, signature, nil); err != nil {
		return fmt.Errorf("rsa-pss: %w", err)
	}
	return nil
}

// Ed25519Verifier implements update.SignatureVerifier using Ed25519. Per
// the Ed25519 construction the "digest" passed to Verify is in fact the
// whole signed message, not a pre-hashed summary; callers pairing this
// verifier with a Hasher must configure a Hasher that returns the message
// itself (see NewIdentityHasher).
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier returns a verifier checking signatures against pub.
func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{pub: pub}
}

// Verify implements update.SignatureVerifier.
func (v *Ed25519Verifier) Verify(digest, signature []byte) error {
	if !ed25519.Verify(v.pub, digest, signature) {
		return fmt.Errorf("ed25519: signature verification failed")
	}
	return nil
}

// IdentityHasher implements update.Hasher by accumulating the raw bytes
// fed to it rather than hashing them, for use with verifiers such as
// Ed25519Verifier that sign the message directly.
type IdentityHasher struct {
	buf []byte
}

// NewIdentityHasher returns a ready-to-use IdentityHasher.
func NewIdentityHasher() *IdentityHasher {
	return &IdentityHasher{}
}

// Begin implements update.Hasher.
func (h *IdentityHasher) Begin() {
	h.buf = nil
}

// AddData implements update.Hasher.
func (h *IdentityHasher) AddData(p []byte) {
	h.buf = append(h.buf, p...)
}

// End implements update.Hasher.
func (h *IdentityHasher) End() {}

// Digest implements update.Hasher.
func (h *IdentityHasher) Digest() []byte {
	return h.buf
}

// DigestLen implements update.Hasher.
func (h *IdentityHasher) DigestLen() int {
	return len(h.buf)
}
