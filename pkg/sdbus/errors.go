// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import (
	"errors"
	"fmt"
)

// ErrInvalidBit is returned when a bit outside {0,1} is supplied to a
// BitVector constructor or append, or when a sample carries signal values
// outside their documented domains. Always an input-data defect.
var ErrInvalidBit = errors.New("bit value must be 0 or 1")

// ErrRange is returned when a slice or single-bit access requests indices
// outside a vector's bounds, including a too-short frame reaching
// classification. Local to the frame being decoded; the decoder recovers.
var ErrRange = errors.New("bit index out of range")

// TruncatedFrameError reports that the sample stream ended while the
// decoder was still accumulating a frame. Reported once at end of stream;
// frames already emitted are unaffected.
type TruncatedFrameError struct {
	Bits     int // bits accumulated before the stream ended
	Expected int // target frame length
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("truncated frame at end of stream: %d of %d bits", e.Bits, e.Expected)
}
