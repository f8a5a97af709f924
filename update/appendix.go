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
	"encoding/binary"
	"fmt"
)

// hashChunkSize is the size of the read buffer used while streaming the
// image body through the Hasher. It is a tuning knob for constrained-RAM
// targets, not part of the contract: 256 bytes is the value used by the
// original ESP-IDF implementation this design is compatible with.
const hashChunkSize = 256

// signatureLengthFieldSize is the width, in bytes, of the little-endian
// unsigned signature_length field at the very end of a written image.
const signatureLengthFieldSize = 4

// verifyAppendix reads back the trailing appendix of the image written to
// slot (bytesWritten bytes total) and checks it against cfg. If cfg
// enables neither the magic check nor the signature check, nothing is read
// and verification succeeds.
//
// Per the compatibility note this design preserves from its source: the
// hashed body is bytes [0, bytesWritten-signatureLength-4), which
// includes the magic bytes. This is unconventional — most designs hash
// only the body proper, excluding the trailing magic/signature appendix
// entirely — but existing signed images depend on it.
func verifyAppendix(flash FlashTarget, slot Slot, bytesWritten int64, cfg Config) error {
	if len(cfg.Magic) == 0 && (cfg.Hasher == nil || cfg.Verifier == nil) {
		return nil
	}

	if bytesWritten < signatureLengthFieldSize {
		return ErrMalformed
	}

	lenBuf, err := flash.Read(slot, bytesWritten-signatureLengthFieldSize, signatureLengthFieldSize)
	if err != nil {
		return &FlashError{Op: "read signature_length", Code: err}
	}
	sigLen := int64(binary.LittleEndian.Uint32(lenBuf))

	magicLen := int64(len(cfg.Magic))
	appendix := sigLen + magicLen + signatureLengthFieldSize
	if appendix > bytesWritten {
		return fmt.Errorf("%w: appendix %d bytes exceeds image of %d bytes", ErrMalformed, appendix, bytesWritten)
	}

	if magicLen > 0 {
		magicOffset := bytesWritten - appendix
		got, err := flash.Read(slot, magicOffset, magicLen)
		if err != nil {
			return &FlashError{Op: "read magic", Code: err}
		}
		if string(got) != string(cfg.Magic) {
			return ErrMagicMismatch
		}
	}

	if cfg.Hasher != nil && cfg.Verifier != nil {
		bodyLen := bytesWritten - sigLen - signatureLengthFieldSize

		digest, err := hashBody(flash, slot, bodyLen, cfg.Hasher)
		if err != nil {
			return err
		}

		sig, err := flash.Read(slot, bodyLen, sigLen)
		if err != nil {
			return &FlashError{Op: "read signature", Code: err}
		}

		if err := cfg.Verifier.Verify(digest, sig); err != nil {
			return ErrSignatureInvalid
		}
	}

	return nil
}

// hashBody streams bodyLen bytes of slot, starting at offset 0, through
// hasher in fixed-size chunks, returning the resulting digest.
func hashBody(flash FlashTarget, slot Slot, bodyLen int64, hasher Hasher) ([]byte, error) {
	hasher.Begin()

	var read int64
	for read < bodyLen {
		n := int64(hashChunkSize)
		if rem := bodyLen - read; rem < n {
			n = rem
		}
		chunk, err := flash.Read(slot, read, n)
		if err != nil {
			hasher.End()
			return nil, &FlashError{Op: "read body for hashing", Code: err}
		}
		hasher.AddData(chunk)
		read += n
	}

	hasher.End()
	return hasher.Digest(), nil
}
