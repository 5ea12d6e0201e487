// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package trace

import (
	"bufio"
	"io"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

// Packed sample layout, one byte per sample:
//
//	bit 7      clk
//	bit 6      cmd
//	bits 5..4  reserved, zero
//	bits 3..0  data nibble
//
// This is the format capture probes emit on serial and websocket links.
const (
	packedClkBit  = 7
	packedCmdBit  = 6
	packedDataMsk = 0x0F
)

// PackSample encodes a sample into its one-byte wire form.
func PackSample(s sdbus.Sample) byte {
	return (s.Clk&1)<<packedClkBit | (s.Cmd&1)<<packedCmdBit | s.Data&packedDataMsk
}

// UnpackSample decodes a one-byte wire sample.
func UnpackSample(b byte) sdbus.Sample {
	return sdbus.Sample{
		Clk:  b >> packedClkBit & 1,
		Cmd:  b >> packedCmdBit & 1,
		Data: b & packedDataMsk,
	}
}

// PackSamples encodes a sample slice into its packed byte form.
func PackSamples(samples []sdbus.Sample) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = PackSample(s)
	}
	return out
}

// UnpackSamples decodes a packed byte slice.
func UnpackSamples(data []byte) []sdbus.Sample {
	out := make([]sdbus.Sample, len(data))
	for i, b := range data {
		out[i] = UnpackSample(b)
	}
	return out
}

// PackedReader reads packed samples from a byte stream.
type PackedReader struct {
	r *bufio.Reader
}

// NewPackedReader wraps r for packed sample reads.
func NewPackedReader(r io.Reader) *PackedReader {
	return &PackedReader{r: bufio.NewReader(r)}
}

// Next returns the next sample, or io.EOF at end of input.
func (p *PackedReader) Next() (sdbus.Sample, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return sdbus.Sample{}, err
	}
	return UnpackSample(b), nil
}
