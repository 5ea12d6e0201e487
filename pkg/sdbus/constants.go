// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

// Package sdbus decodes SD-card bus command and response frames from a
// digitally-sampled three-signal trace (clock, command line, data nibble)
// captured by a logic analyzer at a fixed sample period.
//
// The package provides a sample-at-a-time decoder state machine, an
// HDL-style bit vector for field extraction, frame formatting, advisory
// frame validation, and a trace generator for producing synthetic captures.
package sdbus

import "time"

// Frame lengths in bits. A standard command or short response occupies 48
// bits on the CMD line; the long register responses (R2) occupy 136.
const (
	ShortFrameBits = 48
	LongFrameBits  = 136
)

// Field bit ranges for the 48-bit frame, HDL "downto" indexed. These are
// protocol facts from the SD bus framing specification and must not change.
const (
	CmdIndexHigh = 45
	CmdIndexLow  = 40
	ArgumentHigh = 39
	ArgumentLow  = 8
	CRC7StopHigh = 7
	CRC7StopLow  = 0
)

// Field bit ranges for the 136-bit frame.
const (
	LongStartHigh    = 135
	LongStartLow     = 134
	LongReservedHigh = 133
	LongReservedLow  = 128
	LongRegisterHigh = 127
	LongRegisterLow  = 0
)

// Reserved command-index values that select response dispatch on a short
// response frame.
const (
	R3CmdIndex = 63 // OCR register reply
	R6CmdIndex = 3  // published RCA reply
)

// AppCmdIndex is CMD55 (APP_CMD). A command decoded immediately after it is
// rendered as an application-specific command (ACMD).
const AppCmdIndex = 55

// CRC-7 configuration (x^7 + x^3 + 1). The decoder never validates CRC
// fields; this is used by the trace generator to emit well-formed frames.
const (
	crc7Polynomial = 0x89
	crc7Mask       = 0x7F
)

// DefaultSamplePeriod is the capture sample period assumed when the caller
// does not supply one (100 MS/s analyzer).
const DefaultSamplePeriod = 10 * time.Nanosecond

// FirstSampleLine is the line number of the first data record in a capture.
// Line 1 is the column header by convention.
const FirstSampleLine = 2

// Decoder states (internal)
const (
	stateIdle = iota
	stateAcquiring
)

// longResponseCommands lists the command indexes that solicit a 136-bit
// response: CMD2 (ALL_SEND_CID), CMD9 (SEND_CSD), CMD10 (SEND_CID).
var longResponseCommands = map[int]bool{
	2:  true,
	9:  true,
	10: true,
}

// SolicitsLongResponse reports whether the frame following a command with
// the given index is a 136-bit long response.
func SolicitsLongResponse(cmdIndex int) bool {
	return longResponseCommands[cmdIndex]
}
