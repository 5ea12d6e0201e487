// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import (
	"fmt"
	"time"
)

// Decoder implements the SD bus frame decoder state machine. It consumes
// one capture sample at a time, tracks clock and command line edges, and
// assembles command-line bits into frames once a start condition is seen.
//
// A Decoder owns its accumulator and edge state exclusively; use one
// instance per trace.
type Decoder struct {
	state    int
	acc      *BitVector
	bitCount int
	target   int // frame length selected when acquisition started

	// Command index of the last decoded command frame. Sizes the next
	// frame (CMD2/9/10 solicit a 136-bit response) and selects the ACMD
	// display rule after CMD55.
	prevCmdIndex int

	// Edge detection state. The command line idles high, the clock low.
	lastClk         uint8
	lastCmd         uint8
	line            int
	lastClkEdgeLine int
	lastClockHz     float64

	samplePeriod time.Duration

	// ClockRateFunc, when set, is called with the estimated transaction
	// clock frequency each time the estimate changes.
	ClockRateFunc func(hz float64)
}

// NewDecoder creates a decoder for a trace captured at the given sample
// period. A zero or negative period selects DefaultSamplePeriod.
func NewDecoder(samplePeriod time.Duration) *Decoder {
	if samplePeriod <= 0 {
		samplePeriod = DefaultSamplePeriod
	}
	return &Decoder{
		state:        stateIdle,
		lastClk:      0,
		lastCmd:      1,
		line:         FirstSampleLine,
		samplePeriod: samplePeriod,
	}
}

// Reset discards any in-progress frame and returns the decoder to idle.
// Edge state, line counter and the previous command index are preserved so
// the stream can continue.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.acc = nil
	d.bitCount = 0
	d.target = 0
}

// LastClockRate returns the most recent transaction clock estimate in Hz,
// or 0 before the first clock edge pair.
func (d *Decoder) LastClockRate() float64 {
	return d.lastClockHz
}

// SamplePeriod returns the capture sample period the decoder was built with.
func (d *Decoder) SamplePeriod() time.Duration {
	return d.samplePeriod
}

// Line returns the line number the next sample will be attributed to.
func (d *Decoder) Line() int {
	return d.line
}

// ProcessSample processes a single capture sample through the decoder state
// machine. Returns a completed frame, or nil while a frame is incomplete.
// Returns an error if the sample is malformed or a completed frame fails to
// decode; either way the decoder stays consistent and the stream may
// continue.
func (d *Decoder) ProcessSample(s Sample) (*Frame, error) {
	// Reject out-of-domain samples before they can touch edge state.
	if err := s.Validate(); err != nil {
		return nil, err
	}

	line := d.line
	d.line++

	// Edge detection runs on every sample regardless of state.
	risingClk := s.Clk == 1 && d.lastClk == 0
	fallingCmd := s.Cmd == 0 && d.lastCmd == 1
	d.lastClk = s.Clk
	d.lastCmd = s.Cmd

	// Estimate the transaction clock from rising-edge spacing.
	if risingClk {
		if d.lastClkEdgeLine > 0 {
			edgeToEdge := line - d.lastClkEdgeLine
			hz := 1.0 / (float64(edgeToEdge) * d.samplePeriod.Seconds())
			if hz != d.lastClockHz {
				d.lastClockHz = hz
				if d.ClockRateFunc != nil {
					d.ClockRateFunc(hz)
				}
			}
		}
		d.lastClkEdgeLine = line
	}

	switch d.state {
	case stateIdle:
		// The falling edge of the CMD line is the start bit of a frame.
		if fallingCmd {
			d.acc = NewBitVector()
			d.bitCount = 0
			d.target = ShortFrameBits
			if SolicitsLongResponse(d.prevCmdIndex) {
				d.target = LongFrameBits
			}
			d.state = stateAcquiring
		}
		return nil, nil

	case stateAcquiring:
		// Data is always latched on the clock's rising edge. At the
		// capture rates this decoder is built for, host-side data
		// transitions settle well before the rising edge is observed.
		if !risingClk {
			return nil, nil
		}
		if err := d.acc.Append(int(s.Cmd)); err != nil {
			d.Reset()
			return nil, err
		}
		d.bitCount++
		if d.bitCount < d.target {
			return nil, nil
		}

		frame, nextCmdIndex, err := classify(d.acc, d.prevCmdIndex)
		d.Reset()
		if err != nil {
			return nil, fmt.Errorf("frame decode failed at line %d: %w", line, err)
		}
		d.prevCmdIndex = nextCmdIndex
		frame.timestamp = time.Now()
		frame.line = line
		return frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid decoder state: %d", d.state)
	}
}

// Finish signals end of stream. If a frame was still being accumulated it
// reports a TruncatedFrameError and discards the partial frame; frames
// already emitted are unaffected.
func (d *Decoder) Finish() error {
	if d.state == stateAcquiring {
		err := &TruncatedFrameError{Bits: d.bitCount, Expected: d.target}
		d.Reset()
		return err
	}
	return nil
}
