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

//go:build tamago

package flashtarget

import (
	"fmt"

	"github.com/usbarmory/tamago/soc/nxp/usdhc"
)

// MaxTransferBytes bounds a single DMA transfer issued against the card,
// so that a large Append does not require a correspondingly large
// contiguous DMA allocation.
var MaxTransferBytes = 32 * 1024

// MMCDevice adapts a *usdhc.USDHC card to the BlockDevice interface used
// by Partition and Slot.
type MMCDevice struct {
	Card *usdhc.USDHC
}

// BlockSize implements BlockDevice.
func (d *MMCDevice) BlockSize() uint {
	return uint(d.Card.Info().BlockSize)
}

// WriteBlocks implements BlockDevice.
func (d *MMCDevice) WriteBlocks(lba uint, b []byte) (uint, error) {
	if len(b) == 0 {
		return 0, nil
	}
	bs := int(d.BlockSize())
	if r := len(b) % bs; r != 0 {
		b = append(b, make([]byte, bs-r)...)
	}
	numBlocks := uint(len(b) / bs)

	for len(b) > 0 {
		xl := len(b)
		if xl > MaxTransferBytes {
			xl = MaxTransferBytes
		}
		if err := d.Card.WriteBlocks(int(lba), b[:xl]); err != nil {
			return 0, fmt.Errorf("WriteBlocks(%d, ...): %w", lba, err)
		}
		b = b[xl:]
		lba += uint(xl / bs)
	}
	return numBlocks, nil
}

// ReadBlocks implements BlockDevice.
func (d *MMCDevice) ReadBlocks(lba uint, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	bs := int64(d.BlockSize())

	for len(b) > 0 {
		xl := len(b)
		if xl > MaxTransferBytes {
			xl = MaxTransferBytes
		}
		r, err := d.Card.Read(int64(lba)*bs, int64(xl))
		if err != nil {
			return fmt.Errorf("Read(%d, %d): %w", lba, xl, err)
		}
		copy(b[:xl], r)
		b = b[xl:]
		lba += uint(xl) / uint(bs)
	}
	return nil
}
