// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import (
	"fmt"
	"time"
)

// Statistics tracks decoded-frame counts and error rates for one trace.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	Commands        uint64
	AppCommands     uint64
	R1Responses     uint64
	R2Responses     uint64
	R3Responses     uint64
	R6Responses     uint64
	DecodeErrors    uint64
	InvalidSamples  uint64
	TruncatedFrames uint64
	AnomalousFrames uint64
	StopBitErrors   uint64
	StartBitErrors  uint64
	ReservedErrors  uint64
	NullRCAs        uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec wall clock
	ErrorRate float64 // errors/sec wall clock
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoder event: a decoded frame with its validation
// findings, or a decode error.
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	if decodeErr != nil {
		s.DecodeErrors++
		return
	}
	if frame == nil {
		return
	}

	s.TotalFrames++
	switch frame.Kind() {
	case KindCommand:
		s.Commands++
		if frame.IsAppCommand() {
			s.AppCommands++
		}
	case KindResponseR1:
		s.R1Responses++
	case KindResponseR2:
		s.R2Responses++
	case KindResponseR3:
		s.R3Responses++
	case KindResponseR6:
		s.R6Responses++
	}

	if len(validationErrors) > 0 {
		s.AnomalousFrames++
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyStopBit:
				s.StopBitErrors++
			case AnomalyStartBits:
				s.StartBitErrors++
			case AnomalyReservedBits:
				s.ReservedErrors++
			case AnomalyNullRCA:
				s.NullRCAs++
			}
		}
	}

	s.LastUpdateTime = time.Now()
}

// RecordInvalidSample counts a sample rejected at ingestion.
func (s *Statistics) RecordInvalidSample() {
	s.InvalidSamples++
}

// RecordTruncation counts a frame cut off by end of stream.
func (s *Statistics) RecordTruncation() {
	s.TruncatedFrames++
}

// CalculateRates recalculates frame and error rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.DecodeErrors + s.InvalidSamples + s.TruncatedFrames + s.AnomalousFrames
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s *Statistics) String() string {
	s.CalculateRates()

	var anomalousPercent float64
	if s.TotalFrames > 0 {
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Commands:        %8d", s.Commands)
	if s.AppCommands > 0 {
		result += fmt.Sprintf(" (%d app-specific)", s.AppCommands)
	}
	result += "\n"
	result += fmt.Sprintf("Responses:       %8d\n", s.R1Responses+s.R2Responses+s.R3Responses+s.R6Responses)
	if s.R1Responses > 0 {
		result += fmt.Sprintf("  R1 (status):      %5d\n", s.R1Responses)
	}
	if s.R2Responses > 0 {
		result += fmt.Sprintf("  R2 (CID/CSD):     %5d\n", s.R2Responses)
	}
	if s.R3Responses > 0 {
		result += fmt.Sprintf("  R3 (OCR):         %5d\n", s.R3Responses)
	}
	if s.R6Responses > 0 {
		result += fmt.Sprintf("  R6 (RCA):         %5d\n", s.R6Responses)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.InvalidSamples > 0 {
		result += fmt.Sprintf("Invalid Samples: %8d\n", s.InvalidSamples)
	}
	if s.TruncatedFrames > 0 {
		result += fmt.Sprintf("Truncated:       %8d\n", s.TruncatedFrames)
	}
	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
		if s.StopBitErrors > 0 {
			result += fmt.Sprintf("  Stop Bit:         %5d\n", s.StopBitErrors)
		}
		if s.StartBitErrors > 0 {
			result += fmt.Sprintf("  Start Bit:        %5d\n", s.StartBitErrors)
		}
		if s.ReservedErrors > 0 {
			result += fmt.Sprintf("  Reserved Bits:    %5d\n", s.ReservedErrors)
		}
		if s.NullRCAs > 0 {
			result += fmt.Sprintf("  Null RCA:         %5d\n", s.NullRCAs)
		}
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters.
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{StartTime: now, LastUpdateTime: now}
}
