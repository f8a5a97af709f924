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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"
)

func TestSHA256HasherMatchesStdlib(t *testing.T) {
	h := NewSHA256Hasher()
	h.Begin()
	h.AddData([]byte("hello, "))
	h.AddData([]byte("world"))
	h.End()

	if got, want := h.DigestLen(), 32; got != want {
		t.Fatalf("DigestLen() = %d, want %d", got, want)
	}
	if len(h.Digest()) != h.DigestLen() {
		t.Fatalf("Digest() length = %d, want %d", len(h.Digest()), h.DigestLen())
	}
	if want := sha256.Sum256([]byte("hello, world")); string(h.Digest()) != string(want[:]) {
		t.Fatalf("Digest() = %x, want %x", h.Digest(), want)
	}
}

func TestBlake2bHasherResetsOnBegin(t *testing.T) {
	h := NewBlake2bHasher()
	h.Begin()
	h.AddData([]byte("first"))
	h.End()
	first := h.Digest()

	h.Begin()
	h.AddData([]byte("second"))
	h.End()
	second := h.Digest()

	if string(first) == string(second) {
		t.Fatalf("digests of different input collided")
	}

	fresh := NewBlake2bHasher()
	fresh.Begin()
	fresh.AddData([]byte("second"))
	fresh.End()
	if string(second) != string(fresh.Digest()) {
		t.Fatalf("digest after second Begin = %x, want %x (state from the first cycle leaked)", second, fresh.Digest())
	}
}

func TestRSAPSSVerifierRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	h := NewSHA256Hasher()
	h.Begin()
	h.AddData([]byte("firmware body"))
	h.End()
	digest := h.Digest()

	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest, nil)
	if err != nil {
		t.Fatalf("SignPSS: %v", err)
	}

	v := NewRSAPSSVerifier(&key.PublicKey)
	if err := v.Verify(digest, sig); err != nil {
		t.Fatalf("Verify (valid signature) = %v, want nil", err)
	}

	digest[0] ^= 0xff
	if err := v.Verify(digest, sig); err == nil {
		t.Fatalf("Verify (tampered digest) succeeded, want error")
	}
}

func TestEd25519VerifierRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	msg := []byte("firmware body and magic")
	sig := ed25519.Sign(priv, msg)

	v := NewEd25519Verifier(pub)
	if err := v.Verify(msg, sig); err != nil {
		t.Fatalf("Verify (valid signature) = %v, want nil", err)
	}
	if err := v.Verify(append(msg, 0x00), sig); err == nil {
		t.Fatalf("Verify (tampered message) succeeded, want error")
	}
}

func TestIdentityHasherAccumulatesRawBytes(t *testing.T) {
	h := NewIdentityHasher()
	h.Begin()
	h.AddData([]byte("ab"))
	h.AddData([]byte("cd"))
	h.End()

	if got, want := string(h.Digest()), "abcd"; got != want {
		t.Fatalf("Digest() = %q, want %q", got, want)
	}
	if got, want := h.DigestLen(), 4; got != want {
		t.Fatalf("DigestLen() = %d, want %d", got, want)
	}
}
