// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import (
	"fmt"
	"time"
)

// FrameKind identifies the decoded frame variant.
type FrameKind int

const (
	KindCommand    FrameKind = iota // host → card command
	KindResponseR1                  // normal status reply
	KindResponseR2                  // CID/CSD register reply (136 bits)
	KindResponseR3                  // OCR register reply
	KindResponseR6                  // published RCA reply
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindResponseR1:
		return "R1"
	case KindResponseR2:
		return "R2"
	case KindResponseR3:
		return "R3"
	case KindResponseR6:
		return "R6"
	default:
		return "UNKNOWN"
	}
}

// Frame represents one decoded SD bus frame. Fields are immutable once
// produced; ownership passes to the caller for rendering.
type Frame struct {
	kind FrameKind
	raw  *BitVector

	startTransfer *BitVector
	cmdIndex      *BitVector // Command, R1, R6; reserved 63 field for R3
	argument      *BitVector // Command/R1 argument; R3 OCR
	crc7Stop      *BitVector // absent for R2
	newRCA        *BitVector // R6 only
	cardStatus    *BitVector // R6 only
	reserved      *BitVector // R2 only (bits 133..128)
	register      *BitVector // R2 only (128-bit CID or CSD)

	appCmd    bool // Command following CMD55, rendered as ACMD
	timestamp time.Time
	line      int // capture line at which the frame completed
}

// classify interprets a completed bit vector as a command or response frame.
// prevCmdIndex is the command index of the last decoded command frame; it
// selects the ACMD display rule and is replaced by the returned index.
// Classification trusts the frame length chosen when acquisition started and
// never infers length from content.
func classify(v *BitVector, prevCmdIndex int) (*Frame, int, error) {
	startTransfer, err := v.Slice(v.Length()-1, v.Length()-2)
	if err != nil {
		return nil, prevCmdIndex, err
	}
	st, err := startTransfer.Value()
	if err != nil {
		return nil, prevCmdIndex, err
	}

	f := &Frame{raw: v, startTransfer: startTransfer}

	if st == 1 {
		// Transfer bit set: host → card command frame.
		if err := f.extractShortFields(v); err != nil {
			return nil, prevCmdIndex, err
		}
		f.kind = KindCommand
		f.appCmd = prevCmdIndex == AppCmdIndex
		return f, int(f.CommandIndex()), nil
	}

	if v.Length() == LongFrameBits {
		// R2 long register reply. The previous command index does not
		// carry forward past a long response.
		f.kind = KindResponseR2
		if f.startTransfer, err = v.Slice(LongStartHigh, LongStartLow); err != nil {
			return nil, prevCmdIndex, err
		}
		if f.reserved, err = v.Slice(LongReservedHigh, LongReservedLow); err != nil {
			return nil, prevCmdIndex, err
		}
		if f.register, err = v.Slice(LongRegisterHigh, LongRegisterLow); err != nil {
			return nil, prevCmdIndex, err
		}
		return f, 0, nil
	}

	if err := f.extractShortFields(v); err != nil {
		return nil, prevCmdIndex, err
	}
	switch f.CommandIndex() {
	case R3CmdIndex:
		f.kind = KindResponseR3
	case R6CmdIndex:
		f.kind = KindResponseR6
		if f.newRCA, err = v.Slice(ArgumentHigh, 24); err != nil {
			return nil, prevCmdIndex, err
		}
		if f.cardStatus, err = v.Slice(23, ArgumentLow); err != nil {
			return nil, prevCmdIndex, err
		}
	default:
		f.kind = KindResponseR1
	}
	return f, prevCmdIndex, nil
}

// extractShortFields pulls the 48-bit frame fields shared by commands and
// short responses.
func (f *Frame) extractShortFields(v *BitVector) error {
	var err error
	if f.cmdIndex, err = v.Slice(CmdIndexHigh, CmdIndexLow); err != nil {
		return err
	}
	if f.argument, err = v.Slice(ArgumentHigh, ArgumentLow); err != nil {
		return err
	}
	if f.crc7Stop, err = v.Slice(CRC7StopHigh, CRC7StopLow); err != nil {
		return err
	}
	return nil
}

// fieldValue reads a bounded field vector as an integer. All extracted
// fields other than the 128-bit register fit a uint64.
func fieldValue(v *BitVector) uint64 {
	if v == nil {
		return 0
	}
	val, err := v.Value()
	if err != nil {
		panic(fmt.Sprintf("sdbus: field wider than 64 bits: %v", err))
	}
	return val
}

// Kind returns the decoded frame variant.
func (f *Frame) Kind() FrameKind {
	return f.kind
}

// Raw returns the complete frame bit vector.
func (f *Frame) Raw() *BitVector {
	return f.raw
}

// StartTransfer returns the two leading direction bits.
func (f *Frame) StartTransfer() uint8 {
	return uint8(fieldValue(f.startTransfer))
}

// CommandIndex returns the 6-bit command index. For R3 this is the reserved
// all-ones field (63); for R2 it is 0.
func (f *Frame) CommandIndex() uint8 {
	return uint8(fieldValue(f.cmdIndex))
}

// Argument returns the 32-bit argument field (Command, R1).
func (f *Frame) Argument() uint32 {
	return uint32(fieldValue(f.argument))
}

// OCR returns the 32-bit OCR register contents of an R3 response.
func (f *Frame) OCR() uint32 {
	return uint32(fieldValue(f.argument))
}

// CRC7Stop returns the trailing CRC7-plus-stop byte of a 48-bit frame.
func (f *Frame) CRC7Stop() uint8 {
	return uint8(fieldValue(f.crc7Stop))
}

// NewRCA returns the published relative card address of an R6 response.
func (f *Frame) NewRCA() uint16 {
	return uint16(fieldValue(f.newRCA))
}

// CardStatus returns the 16-bit card status field of an R6 response.
func (f *Frame) CardStatus() uint16 {
	return uint16(fieldValue(f.cardStatus))
}

// Reserved returns the 6-bit reserved field of an R2 response.
func (f *Frame) Reserved() uint8 {
	return uint8(fieldValue(f.reserved))
}

// Register returns the 128-bit CID or CSD contents of an R2 response,
// nil for other kinds.
func (f *Frame) Register() *BitVector {
	return f.register
}

// IsAppCommand reports whether this command frame immediately followed
// CMD55 (APP_CMD) and is therefore rendered as ACMD<n>. The underlying
// CommandIndex value is unchanged by this flag.
func (f *Frame) IsAppCommand() bool {
	return f.appCmd
}

// Timestamp returns the frame's decode timestamp.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Line returns the capture line number at which the frame completed.
func (f *Frame) Line() int {
	return f.line
}
