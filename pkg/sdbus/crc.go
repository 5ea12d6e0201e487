// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

// CalculateCRC7 computes the SD bus CRC-7 checksum (x^7 + x^3 + 1) over the
// bits of v in transmission order. The result occupies the low 7 bits.
func CalculateCRC7(v *BitVector) uint8 {
	var crc uint8
	for _, b := range v.bits {
		crc = crc<<1 | b
		if crc&0x80 != 0 {
			crc ^= crc7Polynomial
		}
	}
	// Flush the register by 7 zero bits.
	for i := 0; i < 7; i++ {
		crc <<= 1
		if crc&0x80 != 0 {
			crc ^= crc7Polynomial
		}
	}
	return crc & crc7Mask
}
