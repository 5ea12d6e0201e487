// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import "fmt"

// Sample is one logic-analyzer capture record: the clock and command line
// levels plus the 4-bit data bus nibble, taken at a fixed sample period.
type Sample struct {
	Clk  uint8 // clock line level, 0 or 1
	Cmd  uint8 // command line level, 0 or 1
	Data uint8 // data bus nibble, 0x0-0xF
}

// Validate checks that all signal values are within their documented
// domains. Returns ErrInvalidBit otherwise.
func (s Sample) Validate() error {
	if s.Clk > 1 {
		return fmt.Errorf("clk level %d: %w", s.Clk, ErrInvalidBit)
	}
	if s.Cmd > 1 {
		return fmt.Errorf("cmd level %d: %w", s.Cmd, ErrInvalidBit)
	}
	if s.Data > 0xF {
		return fmt.Errorf("data nibble 0x%X exceeds 4 bits: %w", s.Data, ErrInvalidBit)
	}
	return nil
}
