// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import "fmt"

// AnomalyType represents different classes of frame anomalies.
type AnomalyType int

const (
	AnomalyStopBit AnomalyType = iota
	AnomalyStartBits
	AnomalyReservedBits
	AnomalyNullRCA
)

// ValidationError represents an advisory frame validation finding. Findings
// never change decode outcomes; a frame with findings was still decoded
// with the field layout its length and direction bits selected.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame inspects a decoded frame for protocol anomalies: a cleared
// stop bit, a set start bit, or reserved fields without their mandated
// values. Returns a slice of findings, empty when the frame is clean.
// CRC fields are not checked.
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	if stop, err := f.Raw().Bit(0); err == nil && stop != 1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyStopBit,
			Message: "stop bit is 0 (must be 1)",
			Details: map[string]interface{}{"stop": stop},
		})
	}

	// The start bit is always 0; a raised start bit means the capture
	// window opened on a glitch rather than a start condition.
	if f.StartTransfer() > 1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyStartBits,
			Message: fmt.Sprintf("start bit is 1 (start+transfer=%02b)", f.StartTransfer()),
			Details: map[string]interface{}{"start_transfer": f.StartTransfer()},
		})
	}

	switch f.Kind() {
	case KindResponseR2:
		if f.Reserved() != 0x3F {
			errors = append(errors, ValidationError{
				Type:    AnomalyReservedBits,
				Message: fmt.Sprintf("R2 reserved field is %06b (must be 111111)", f.Reserved()),
				Details: map[string]interface{}{"reserved": f.Reserved()},
			})
		}

	case KindResponseR3:
		if f.CRC7Stop() != 0xFF {
			errors = append(errors, ValidationError{
				Type:    AnomalyReservedBits,
				Message: fmt.Sprintf("R3 trailer is %02x (must be ff)", f.CRC7Stop()),
				Details: map[string]interface{}{"trailer": f.CRC7Stop()},
			})
		}

	case KindResponseR6:
		// RCA 0 is reserved for deselection and is never published.
		if f.NewRCA() == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyNullRCA,
				Message: "R6 published RCA is 0",
				Details: map[string]interface{}{"rca": f.NewRCA()},
			})
		}
	}

	return errors
}
