// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package trace

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

// CaptureVersion is the current .sdcap container version.
const CaptureVersion = 1

// Capture is the .sdcap container: a CBOR map with integer keys holding
// the sample period and the packed sample stream.
type Capture struct {
	Version        uint16 `cbor:"1,keyasint"`
	SamplePeriodNs uint32 `cbor:"2,keyasint"`
	Samples        []byte `cbor:"3,keyasint"`
}

// NewCapture packs samples into a container at the given sample period.
func NewCapture(samplePeriod time.Duration, samples []sdbus.Sample) *Capture {
	if samplePeriod <= 0 {
		samplePeriod = sdbus.DefaultSamplePeriod
	}
	return &Capture{
		Version:        CaptureVersion,
		SamplePeriodNs: uint32(samplePeriod.Nanoseconds()),
		Samples:        PackSamples(samples),
	}
}

// SamplePeriod returns the capture's sample period as a duration.
func (c *Capture) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodNs) * time.Nanosecond
}

// Unpack decodes the capture's packed sample stream.
func (c *Capture) Unpack() []sdbus.Sample {
	return UnpackSamples(c.Samples)
}

// WriteCapture encodes the capture to w.
func WriteCapture(w io.Writer, c *Capture) error {
	data, err := cbor.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}
	return nil
}

// ReadCapture decodes a capture from r, rejecting unknown versions.
func ReadCapture(r io.Reader) (*Capture, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}
	var c Capture
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}
	if c.Version != CaptureVersion {
		return nil, fmt.Errorf("unsupported capture version %d (want %d)", c.Version, CaptureVersion)
	}
	return &c, nil
}
