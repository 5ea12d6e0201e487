// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import "fmt"

// TraceBuilder synthesizes capture sample streams from frame bit patterns.
// Each bit is clocked out as a full clock cycle (low half, then high half)
// at a configurable oversampling factor, so the generated trace exercises
// the same edge-detection path as a real capture.
type TraceBuilder struct {
	samples    []Sample
	oversample int // samples per clock half-period
	data       uint8
}

// NewTraceBuilder creates a trace builder. oversample is the number of
// samples per clock half-period; values below 1 are clamped to 1.
func NewTraceBuilder(oversample int) *TraceBuilder {
	if oversample < 1 {
		oversample = 1
	}
	return &TraceBuilder{oversample: oversample}
}

// SetDataNibble sets the level pattern emitted on the 4-bit data bus.
// The frame decoder ignores the data bus; this exists so generated traces
// look like real captures.
func (b *TraceBuilder) SetDataNibble(nibble uint8) {
	b.data = nibble & 0xF
}

// IdleClocks appends n full clock cycles with the command line held at its
// idle-high rest state.
func (b *TraceBuilder) IdleClocks(n int) {
	for i := 0; i < n; i++ {
		b.halfPeriod(0, 1)
		b.halfPeriod(1, 1)
	}
}

// Quiet appends n samples with both clock and command at rest. Useful to
// model the gap before the first transaction, where the bus clock is not
// yet running.
func (b *TraceBuilder) Quiet(n int) {
	for i := 0; i < n; i++ {
		b.samples = append(b.samples, Sample{Clk: 0, Cmd: 1, Data: b.data})
	}
}

// Frame clocks out every bit of v in transmission order: the command line
// takes the bit level for a low clock half-period, then the clock rises and
// the decoder latches it.
func (b *TraceBuilder) Frame(v *BitVector) {
	for _, bit := range v.bits {
		b.halfPeriod(0, bit)
		b.halfPeriod(1, bit)
	}
	// Let the command line return to rest before the next start bit.
	b.IdleClocks(2)
}

// PartialFrame clocks out only the first n bits of v, leaving the trace cut
// off mid-frame.
func (b *TraceBuilder) PartialFrame(v *BitVector, n int) {
	if n > len(v.bits) {
		n = len(v.bits)
	}
	for _, bit := range v.bits[:n] {
		b.halfPeriod(0, bit)
		b.halfPeriod(1, bit)
	}
}

// Samples returns the accumulated sample stream.
func (b *TraceBuilder) Samples() []Sample {
	return b.samples
}

func (b *TraceBuilder) halfPeriod(clk, cmd uint8) {
	for i := 0; i < b.oversample; i++ {
		b.samples = append(b.samples, Sample{Clk: clk, Cmd: cmd, Data: b.data})
	}
}

// appendBitsUint appends the low width bits of value to v, most-significant
// first.
func appendBitsUint(v *BitVector, value uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		// Bits shifted from a uint are always 0 or 1.
		_ = v.Append(int(value >> i & 1))
	}
}

// CommandFrameBits builds the 48-bit pattern of a host command: start and
// transfer bits 01, the command index, the argument, a valid CRC7 and the
// stop bit.
func CommandFrameBits(cmdIndex uint8, argument uint32) *BitVector {
	return shortFrameBits(1, cmdIndex, argument)
}

// ResponseR1Bits builds a 48-bit normal status reply carrying the given
// command index and card status argument.
func ResponseR1Bits(cmdIndex uint8, status uint32) *BitVector {
	return shortFrameBits(0, cmdIndex, status)
}

// ResponseR3Bits builds a 48-bit OCR reply: reserved all-ones command index
// field, the OCR contents and the all-ones trailer R3 mandates in place of
// a CRC.
func ResponseR3Bits(ocr uint32) *BitVector {
	v := NewBitVector()
	appendBitsUint(v, 0, 2) // start + transfer: card to host
	appendBitsUint(v, R3CmdIndex, 6)
	appendBitsUint(v, uint64(ocr), 32)
	appendBitsUint(v, 0xFF, 8)
	return v
}

// ResponseR6Bits builds a 48-bit published-RCA reply.
func ResponseR6Bits(rca uint16, cardStatus uint16) *BitVector {
	arg := uint32(rca)<<16 | uint32(cardStatus)
	return shortFrameBits(0, R6CmdIndex, arg)
}

// ResponseR2Bits builds a 136-bit CID/CSD register reply around the given
// 128-bit register contents (which carry their own CRC and stop bit).
func ResponseR2Bits(register *BitVector) (*BitVector, error) {
	if register.Length() != LongRegisterHigh-LongRegisterLow+1 {
		return nil, fmt.Errorf("R2 register must be %d bits, got %d: %w",
			LongRegisterHigh-LongRegisterLow+1, register.Length(), ErrRange)
	}
	v := NewBitVector()
	appendBitsUint(v, 0, 2)    // start + transfer: card to host
	appendBitsUint(v, 0x3F, 6) // reserved, all ones
	for _, bit := range register.bits {
		_ = v.Append(int(bit))
	}
	return v, nil
}

// shortFrameBits assembles start/transfer + index + argument, then seals
// the frame with CRC7 over those 40 bits and the stop bit.
func shortFrameBits(transfer uint8, cmdIndex uint8, argument uint32) *BitVector {
	v := NewBitVector()
	_ = v.Append(0) // start bit
	_ = v.Append(int(transfer))
	appendBitsUint(v, uint64(cmdIndex&0x3F), 6)
	appendBitsUint(v, uint64(argument), 32)
	appendBitsUint(v, uint64(CalculateCRC7(v)), 7)
	_ = v.Append(1) // stop bit
	return v
}
