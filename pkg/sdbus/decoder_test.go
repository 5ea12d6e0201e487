// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// decodeAll feeds a sample stream through a decoder and collects frames and
// per-sample errors.
func decodeAll(t *testing.T, d *Decoder, samples []Sample) ([]*Frame, []error) {
	t.Helper()
	var frames []*Frame
	var errs []error
	for _, s := range samples {
		frame, err := d.ProcessSample(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

// ============================================================
// End-to-end decoding
// ============================================================

// Feed the exact 48-bit pattern 01 000110 <32 zeros> 0000000 1: a CMD6 with
// zero argument and a zeroed CRC field. One command must come out and the
// decoder must return to idle.
func TestDecoder_SingleCommandFrame(t *testing.T) {
	bits := NewBitVector()
	_ = bits.Append(0)
	_ = bits.Append(1)
	appendBitsUint(bits, 6, 6)
	appendBitsUint(bits, 0, 32)
	appendBitsUint(bits, 0, 7)
	_ = bits.Append(1)
	if bits.Length() != ShortFrameBits {
		t.Fatalf("test pattern is %d bits", bits.Length())
	}

	b := NewTraceBuilder(4)
	b.Quiet(8)
	b.Frame(bits)

	d := NewDecoder(DefaultSamplePeriod)
	frames, errs := decodeAll(t, d, b.Samples())

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(frames))
	}

	f := frames[0]
	if f.Kind() != KindCommand {
		t.Errorf("kind = %v, want Command", f.Kind())
	}
	if f.CommandIndex() != 6 {
		t.Errorf("CommandIndex = %d, want 6", f.CommandIndex())
	}
	if f.Argument() != 0 {
		t.Errorf("Argument = %08x, want 0", f.Argument())
	}
	if err := d.Finish(); err != nil {
		t.Errorf("decoder must be idle after a completed frame: %v", err)
	}
}

// A full init conversation: every frame in order, ACMD rendering, and the
// long-response length switch around CMD2.
func TestDecoder_InitSequence(t *testing.T) {
	register := NewBitVector()
	for i := 0; i < 128; i++ {
		_ = register.Append((i / 3) % 2)
	}
	r2, err := ResponseR2Bits(register)
	if err != nil {
		t.Fatal(err)
	}

	b := NewTraceBuilder(4)
	b.Quiet(16)
	b.Frame(CommandFrameBits(0, 0))                // GO_IDLE_STATE
	b.Frame(CommandFrameBits(8, 0x1AA))            // SEND_IF_COND
	b.Frame(ResponseR1Bits(8, 0x1AA))              //   R1
	b.Frame(CommandFrameBits(55, 0))               // APP_CMD
	b.Frame(ResponseR1Bits(55, 0x120))             //   R1
	b.Frame(CommandFrameBits(41, 0x40100000))      // ACMD41
	b.Frame(ResponseR3Bits(0xC0FF8000))            //   R3
	b.Frame(CommandFrameBits(2, 0))                // ALL_SEND_CID
	b.Frame(r2)                                    //   R2 (136 bits)
	b.Frame(CommandFrameBits(3, 0))                // SEND_RELATIVE_ADDR
	b.Frame(ResponseR6Bits(0xB368, 0x0500))        //   R6
	b.Frame(CommandFrameBits(7, 0xB368<<16))       // SELECT_CARD
	b.Frame(ResponseR1Bits(7, 0x700))              //   R1

	d := NewDecoder(DefaultSamplePeriod)
	frames, errs := decodeAll(t, d, b.Samples())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := []frameSummary{
		{Kind: KindCommand, CmdIndex: 0},
		{Kind: KindCommand, CmdIndex: 8, Argument: 0x1AA},
		{Kind: KindResponseR1, CmdIndex: 8, Argument: 0x1AA},
		{Kind: KindCommand, CmdIndex: 55},
		{Kind: KindResponseR1, CmdIndex: 55, Argument: 0x120},
		{Kind: KindCommand, CmdIndex: 41, Argument: 0x40100000, AppCmd: true},
		{Kind: KindResponseR3, CmdIndex: 63, Argument: 0xC0FF8000},
		{Kind: KindCommand, CmdIndex: 2},
		{Kind: KindResponseR2},
		{Kind: KindCommand, CmdIndex: 3},
		{Kind: KindResponseR6, CmdIndex: 3, Argument: 0xB3680500, RCA: 0xB368, CardStatus: 0x0500},
		{Kind: KindCommand, CmdIndex: 7, Argument: 0xB3680000},
		{Kind: KindResponseR1, CmdIndex: 7, Argument: 0x700},
	}

	got := make([]frameSummary, len(frames))
	for i, f := range frames {
		got[i] = summarize(f)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("frame sequence mismatch (-want +got):\n%s", diff)
	}

	// The R2 frame must have been assembled from exactly 136 bits.
	if frames[8].Raw().Length() != LongFrameBits {
		t.Errorf("R2 raw length = %d, want %d", frames[8].Raw().Length(), LongFrameBits)
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish after complete conversation: %v", err)
	}
}

// ============================================================
// Frame length selection
// ============================================================

func TestDecoder_LongFrameAfterCMD2910(t *testing.T) {
	register := NewBitVector()
	for i := 0; i < 128; i++ {
		_ = register.Append(1)
	}
	r2, err := ResponseR2Bits(register)
	if err != nil {
		t.Fatal(err)
	}

	for _, cmdIndex := range []uint8{2, 9, 10} {
		b := NewTraceBuilder(2)
		b.Quiet(8)
		b.Frame(CommandFrameBits(cmdIndex, 0))
		b.Frame(r2)
		// After a long response the index resets: the next frame is short.
		b.Frame(CommandFrameBits(13, 0))

		d := NewDecoder(DefaultSamplePeriod)
		frames, errs := decodeAll(t, d, b.Samples())
		if len(errs) != 0 {
			t.Fatalf("CMD%d: unexpected errors: %v", cmdIndex, errs)
		}
		if len(frames) != 3 {
			t.Fatalf("CMD%d: decoded %d frames, want 3", cmdIndex, len(frames))
		}
		if frames[1].Kind() != KindResponseR2 || frames[1].Raw().Length() != LongFrameBits {
			t.Errorf("CMD%d: second frame kind=%v len=%d, want R2/136",
				cmdIndex, frames[1].Kind(), frames[1].Raw().Length())
		}
		if frames[2].Raw().Length() != ShortFrameBits {
			t.Errorf("CMD%d: frame after R2 is %d bits, want 48", cmdIndex, frames[2].Raw().Length())
		}
	}
}

func TestDecoder_ShortFrameAfterOtherCommands(t *testing.T) {
	b := NewTraceBuilder(2)
	b.Quiet(8)
	b.Frame(CommandFrameBits(17, 0x2000))
	b.Frame(ResponseR1Bits(17, 0x900))

	d := NewDecoder(DefaultSamplePeriod)
	frames, errs := decodeAll(t, d, b.Samples())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	if frames[1].Raw().Length() != ShortFrameBits {
		t.Errorf("response length = %d, want 48", frames[1].Raw().Length())
	}
}

// ============================================================
// Edge detection
// ============================================================

// The emitted event sequence is a pure function of the sample sequence and
// the rest state: two decoders fed the same trace must agree exactly.
func TestDecoder_Deterministic(t *testing.T) {
	b := NewTraceBuilder(3)
	b.Quiet(5)
	b.Frame(CommandFrameBits(55, 0))
	b.Frame(ResponseR1Bits(55, 0x120))
	b.Frame(CommandFrameBits(41, 0x40000000))
	samples := b.Samples()

	run := func() ([]frameSummary, []float64) {
		d := NewDecoder(DefaultSamplePeriod)
		var rates []float64
		d.ClockRateFunc = func(hz float64) { rates = append(rates, hz) }
		frames, errs := decodeAll(t, d, samples)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		out := make([]frameSummary, len(frames))
		for i, f := range frames {
			out[i] = summarize(f)
		}
		return out, rates
	}

	frames1, rates1 := run()
	frames2, rates2 := run()
	if diff := cmp.Diff(frames1, frames2); diff != "" {
		t.Errorf("frame sequences differ:\n%s", diff)
	}
	if diff := cmp.Diff(rates1, rates2); diff != "" {
		t.Errorf("clock rate reports differ:\n%s", diff)
	}
}

// ============================================================
// Clock rate estimation
// ============================================================

func TestDecoder_ClockRateDeduplicated(t *testing.T) {
	// oversample 4 means rising edges every 8 samples: at a 10 ns period
	// the transaction clock is 12.5 MHz.
	b := NewTraceBuilder(4)
	b.IdleClocks(20)

	d := NewDecoder(10 * time.Nanosecond)
	var rates []float64
	d.ClockRateFunc = func(hz float64) { rates = append(rates, hz) }

	for _, s := range b.Samples() {
		if _, err := d.ProcessSample(s); err != nil {
			t.Fatal(err)
		}
	}

	if len(rates) != 1 {
		t.Fatalf("expected a single deduplicated rate report, got %v", rates)
	}
	if rates[0] != 12.5e6 {
		t.Errorf("clock rate = %g Hz, want 12.5 MHz", rates[0])
	}
	if d.LastClockRate() != 12.5e6 {
		t.Errorf("LastClockRate = %g", d.LastClockRate())
	}
}

func TestDecoder_ClockRateReportsChanges(t *testing.T) {
	var samples []Sample
	fast := NewTraceBuilder(2)
	fast.IdleClocks(10)
	slow := NewTraceBuilder(8)
	slow.IdleClocks(10)
	samples = append(samples, fast.Samples()...)
	samples = append(samples, slow.Samples()...)

	d := NewDecoder(10 * time.Nanosecond)
	var rates []float64
	d.ClockRateFunc = func(hz float64) { rates = append(rates, hz) }
	for _, s := range samples {
		if _, err := d.ProcessSample(s); err != nil {
			t.Fatal(err)
		}
	}

	if len(rates) < 2 {
		t.Fatalf("expected reports for both clock speeds, got %v", rates)
	}
	for i := 1; i < len(rates); i++ {
		if rates[i] == rates[i-1] {
			t.Errorf("consecutive duplicate rate report: %v", rates)
		}
	}
}

// ============================================================
// Error handling
// ============================================================

func TestDecoder_Truncation(t *testing.T) {
	b := NewTraceBuilder(2)
	b.Quiet(4)
	b.PartialFrame(CommandFrameBits(17, 0), 20)

	d := NewDecoder(DefaultSamplePeriod)
	frames, errs := decodeAll(t, d, b.Samples())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 0 {
		t.Fatalf("truncated stream must not emit frames, got %d", len(frames))
	}

	err := d.Finish()
	var trunc *TruncatedFrameError
	if !errors.As(err, &trunc) {
		t.Fatalf("Finish = %v, want TruncatedFrameError", err)
	}
	if trunc.Bits != 20 || trunc.Expected != ShortFrameBits {
		t.Errorf("truncation reported %d/%d, want 20/48", trunc.Bits, trunc.Expected)
	}

	// Reported once: a second Finish is clean.
	if err := d.Finish(); err != nil {
		t.Errorf("second Finish = %v, want nil", err)
	}
}

func TestDecoder_InvalidSampleDoesNotCorruptState(t *testing.T) {
	b := NewTraceBuilder(2)
	b.Quiet(4)
	b.Frame(CommandFrameBits(6, 0))
	good := b.Samples()

	d := NewDecoder(DefaultSamplePeriod)

	// Malformed samples are rejected up front.
	for _, bad := range []Sample{{Clk: 2}, {Cmd: 7, Clk: 0}, {Clk: 0, Cmd: 1, Data: 0x10}} {
		if _, err := d.ProcessSample(bad); !errors.Is(err, ErrInvalidBit) {
			t.Fatalf("ProcessSample(%+v) expected ErrInvalidBit, got %v", bad, err)
		}
	}

	// The stream continues and decodes normally afterwards.
	frames, errs := decodeAll(t, d, good)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors after rejected samples: %v", errs)
	}
	if len(frames) != 1 || frames[0].CommandIndex() != 6 {
		t.Fatalf("decode after rejected samples: got %d frames", len(frames))
	}
}

func TestDecoder_Reset(t *testing.T) {
	b := NewTraceBuilder(2)
	b.Quiet(4)
	b.PartialFrame(CommandFrameBits(17, 0), 10)

	d := NewDecoder(DefaultSamplePeriod)
	for _, s := range b.Samples() {
		if _, err := d.ProcessSample(s); err != nil {
			t.Fatal(err)
		}
	}
	d.Reset()
	if err := d.Finish(); err != nil {
		t.Errorf("Finish after Reset = %v, want nil", err)
	}
}

func TestDecoder_LineNumbering(t *testing.T) {
	d := NewDecoder(DefaultSamplePeriod)
	if d.Line() != FirstSampleLine {
		t.Fatalf("initial line = %d, want %d", d.Line(), FirstSampleLine)
	}
	if _, err := d.ProcessSample(Sample{Clk: 0, Cmd: 1}); err != nil {
		t.Fatal(err)
	}
	if d.Line() != FirstSampleLine+1 {
		t.Errorf("line after one sample = %d", d.Line())
	}
}
