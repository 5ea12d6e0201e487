// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import "fmt"

// BitVector is an ordered, growable sequence of binary digits with HDL-style
// indexing. With downto orientation (the default) bit index 0 addresses the
// last list element and index length-1 the first, reproducing `(N-1 downto 0)`
// vector semantics where the highest bit index is the first-appended,
// most-significant bit.
type BitVector struct {
	bits   []uint8
	downto bool
}

// NewBitVector creates an empty downto-oriented bit vector.
func NewBitVector() *BitVector {
	return &BitVector{downto: true}
}

// NewBitVectorBits creates a bit vector from an initial bit list.
// Returns ErrInvalidBit if any element is not 0 or 1.
func NewBitVectorBits(bits []int, downto bool) (*BitVector, error) {
	v := &BitVector{bits: make([]uint8, 0, len(bits)), downto: downto}
	for _, b := range bits {
		if err := v.Append(b); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// BitVectorFromUint creates a bit vector holding the minimal big-endian
// binary representation of value, with no leading zero padding. Zero yields
// the single-bit vector [0].
func BitVectorFromUint(value uint64) *BitVector {
	if value == 0 {
		return &BitVector{bits: []uint8{0}, downto: true}
	}
	width := 0
	for tmp := value; tmp != 0; tmp >>= 1 {
		width++
	}
	bits := make([]uint8, width)
	for i := 0; i < width; i++ {
		bits[i] = uint8(value >> (width - 1 - i) & 1)
	}
	return &BitVector{bits: bits, downto: true}
}

// Append adds a bit on the right-hand (least-significant) side.
// Returns ErrInvalidBit for anything other than 0 or 1.
func (v *BitVector) Append(bit int) error {
	if bit != 0 && bit != 1 {
		return fmt.Errorf("append %d: %w", bit, ErrInvalidBit)
	}
	v.bits = append(v.bits, uint8(bit))
	return nil
}

// Length returns the number of bits in the vector.
func (v *BitVector) Length() int {
	return len(v.bits)
}

// Downto reports the indexing orientation.
func (v *BitVector) Downto() bool {
	return v.downto
}

// SetDownto changes the indexing orientation for subsequent Bit and Slice
// calls. The stored bit order is unaffected.
func (v *BitVector) SetDownto(downto bool) {
	v.downto = downto
}

// Bit returns the single bit at the given index, honoring the orientation.
func (v *BitVector) Bit(i int) (int, error) {
	if i < 0 || i >= len(v.bits) {
		return 0, fmt.Errorf("bit %d of %d-bit vector: %w", i, len(v.bits), ErrRange)
	}
	if v.downto {
		return int(v.bits[len(v.bits)-1-i]), nil
	}
	return int(v.bits[i]), nil
}

// Slice returns a new vector containing bits from index high down to low
// inclusive under downto orientation (or list positions low..high
// otherwise), preserving orientation. The result has length high-low+1.
// Returns ErrRange when high < low or either index is out of bounds.
func (v *BitVector) Slice(high, low int) (*BitVector, error) {
	if high < low || low < 0 || high >= len(v.bits) {
		return nil, fmt.Errorf("slice (%d downto %d) of %d-bit vector: %w", high, low, len(v.bits), ErrRange)
	}
	n := high - low + 1
	out := make([]uint8, n)
	if v.downto {
		start := len(v.bits) - high - 1
		copy(out, v.bits[start:start+n])
	} else {
		copy(out, v.bits[low:low+n])
	}
	return &BitVector{bits: out, downto: v.downto}, nil
}

// Copy returns an independent copy of the vector.
func (v *BitVector) Copy() *BitVector {
	out := make([]uint8, len(v.bits))
	copy(out, v.bits)
	return &BitVector{bits: out, downto: v.downto}
}

// Value returns the unsigned integer interpretation of the vector,
// most-significant bit first in append order. Vectors longer than 64 bits
// do not fit a uint64 and return ErrRange; render those with HexString.
func (v *BitVector) Value() (uint64, error) {
	if len(v.bits) > 64 {
		return 0, fmt.Errorf("value of %d-bit vector exceeds 64 bits: %w", len(v.bits), ErrRange)
	}
	var val uint64
	for _, b := range v.bits {
		val = val<<1 | uint64(b)
	}
	return val, nil
}

// BinaryString returns the vector as a string of '0' and '1' characters in
// append order, without any prefix.
func (v *BitVector) BinaryString() string {
	buf := make([]byte, len(v.bits))
	for i, b := range v.bits {
		buf[i] = '0' + b
	}
	return string(buf)
}

// HexString returns the vector as lowercase hexadecimal, zero-padded to
// ceil(length/4) digits, without any prefix. Works for any length,
// including the 136-bit long frames.
func (v *BitVector) HexString() string {
	if len(v.bits) == 0 {
		return "0"
	}
	const hexdigits = "0123456789abcdef"
	n := len(v.bits)
	digits := (n + 3) / 4
	buf := make([]byte, digits)
	for i := 0; i < digits; i++ {
		// Nibble i counts from the least-significant end of the vector.
		hi := n - i*4
		lo := hi - 4
		if lo < 0 {
			lo = 0
		}
		var nib uint8
		for _, b := range v.bits[lo:hi] {
			nib = nib<<1 | b
		}
		buf[digits-1-i] = hexdigits[nib]
	}
	return string(buf)
}

// String implements fmt.Stringer.
func (v *BitVector) String() string {
	return v.BinaryString()
}
