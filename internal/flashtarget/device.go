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

// Package flashtarget implements the update.FlashTarget contract on top
// of a block-addressable storage device, adapted from the dual-slot
// journal-based partition/slot design used for configuration storage
// elsewhere in this code's lineage. Unlike that journal-based design,
// slots here are streamed incrementally (erase, then a sequence of
// appends, then close) because firmware images arrive a chunk at a time
// as they download, rather than being replaced as a single in-memory
// buffer.
package flashtarget

// BlockDevice allows reading and writing a block-addressable storage
// peripheral. It mirrors the Device/MemDev surface used elsewhere in this
// codebase so that a single Target implementation can run against either
// real hardware or an in-memory double.
type BlockDevice interface {
	// BlockSize returns the size in bytes of each block in the underlying
	// storage.
	BlockSize() uint
	// ReadBlocks reads len(b) bytes into b from contiguous storage blocks
	// starting at the given block address. b must be an integer multiple
	// of the device's block size.
	ReadBlocks(lba uint, b []byte) error
	// WriteBlocks writes the data in b to the device blocks starting at
	// the given block address, padding the final block with zeroes if b
	// is not an integer multiple of the block size. Returns the number of
	// blocks written.
	WriteBlocks(lba uint, b []byte) (uint, error)
}
