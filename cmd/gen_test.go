// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

// decodeSamples runs a generated trace through a decoder and collects
// frames, decode errors and the end-of-stream diagnostic.
func decodeSamples(t *testing.T, samples []sdbus.Sample) ([]*sdbus.Frame, error) {
	t.Helper()
	d := sdbus.NewDecoder(sdbus.DefaultSamplePeriod)
	var frames []*sdbus.Frame
	for _, s := range samples {
		frame, err := d.ProcessSample(s)
		if err != nil {
			t.Fatalf("ProcessSample failed: %v", err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, d.Finish()
}

func TestBuildInitConversation_Decodes(t *testing.T) {
	b := sdbus.NewTraceBuilder(2)
	buildInitConversation(b)

	frames, err := decodeSamples(t, b.Samples())
	if err != nil {
		t.Fatalf("Finish reported: %v", err)
	}

	type summary struct {
		Kind     sdbus.FrameKind
		CmdIndex uint8
		AppCmd   bool
	}
	var got []summary
	for _, f := range frames {
		got = append(got, summary{f.Kind(), f.CommandIndex(), f.IsAppCommand()})
	}

	want := []summary{
		{sdbus.KindCommand, 0, false},
		{sdbus.KindCommand, 8, false},
		{sdbus.KindResponseR1, 8, false},
		{sdbus.KindCommand, 55, false},
		{sdbus.KindResponseR1, 55, false},
		{sdbus.KindCommand, 41, true},
		{sdbus.KindResponseR3, 63, false},
		{sdbus.KindCommand, 2, false},
		{sdbus.KindResponseR2, 0, false},
		{sdbus.KindCommand, 3, false},
		{sdbus.KindResponseR6, 3, false},
		{sdbus.KindCommand, 7, false},
		{sdbus.KindResponseR1, 7, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conversation mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFromScript_Directives(t *testing.T) {
	script := `
# a short exchange
quiet 8
idle 4
cmd 6 0x2
r1 6 0x900     # trailing comment
r3 0xC0FF8000
r6 0x1234 0x500
`
	b := sdbus.NewTraceBuilder(1)
	if err := buildFromScript(b, strings.NewReader(script)); err != nil {
		t.Fatalf("buildFromScript failed: %v", err)
	}

	frames, err := decodeSamples(t, b.Samples())
	if err != nil {
		t.Fatalf("Finish reported: %v", err)
	}

	if len(frames) != 4 {
		t.Fatalf("decoded %d frames, want 4", len(frames))
	}
	if frames[0].Kind() != sdbus.KindCommand || frames[0].CommandIndex() != 6 {
		t.Errorf("frame 0 = %s CMD%d, want Command CMD6", frames[0].Kind(), frames[0].CommandIndex())
	}
	if frames[2].Kind() != sdbus.KindResponseR3 || frames[2].OCR() != 0xC0FF8000 {
		t.Errorf("frame 2 = %s OCR=%08X, want R3 OCR=C0FF8000", frames[2].Kind(), frames[2].OCR())
	}
	if frames[3].Kind() != sdbus.KindResponseR6 || frames[3].NewRCA() != 0x1234 {
		t.Errorf("frame 3 = %s RCA=%04X, want R6 RCA=1234", frames[3].Kind(), frames[3].NewRCA())
	}
}

func TestBuildFromScript_R2Register(t *testing.T) {
	register := strings.Repeat("5a", 16)
	script := "cmd 2 0\nr2 " + register + "\n"

	b := sdbus.NewTraceBuilder(1)
	if err := buildFromScript(b, strings.NewReader(script)); err != nil {
		t.Fatalf("buildFromScript failed: %v", err)
	}

	frames, err := decodeSamples(t, b.Samples())
	if err != nil {
		t.Fatalf("Finish reported: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	if frames[1].Kind() != sdbus.KindResponseR2 {
		t.Fatalf("frame 1 kind = %s, want R2", frames[1].Kind())
	}
	if got := frames[1].Register().HexString(); got != register {
		t.Errorf("register = %s, want %s", got, register)
	}
}

func TestBuildFromScript_PartialTruncates(t *testing.T) {
	script := "partial 17 0 20\n"

	b := sdbus.NewTraceBuilder(1)
	if err := buildFromScript(b, strings.NewReader(script)); err != nil {
		t.Fatalf("buildFromScript failed: %v", err)
	}

	frames, err := decodeSamples(t, b.Samples())
	if len(frames) != 0 {
		t.Errorf("decoded %d frames from a partial frame, want 0", len(frames))
	}
	var truncated *sdbus.TruncatedFrameError
	if !errors.As(err, &truncated) {
		t.Fatalf("Finish returned %v, want TruncatedFrameError", err)
	}
	if truncated.Bits != 20 {
		t.Errorf("truncated at %d bits, want 20", truncated.Bits)
	}
}

func TestBuildFromScript_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"unknown directive", "bogus 1\n"},
		{"command index range", "cmd 64 0\n"},
		{"missing argument", "cmd 6\n"},
		{"short register", "r2 5a5a\n"},
		{"bad number", "idle many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sdbus.NewTraceBuilder(1)
			if err := buildFromScript(b, strings.NewReader(tt.script)); err == nil {
				t.Error("expected script error")
			}
		})
	}
}

func TestResolveGenFormat(t *testing.T) {
	tests := []struct {
		out    string
		format string
		want   string
		ok     bool
	}{
		{"-", "", "csv", true},
		{"trace.csv", "", "csv", true},
		{"trace.sdcap", "", "sdcap", true},
		{"trace.bin", "sdcap", "sdcap", true},
		{"trace.csv", "xml", "", false},
	}
	for _, tt := range tests {
		genOut, genFormat = tt.out, tt.format
		got, err := resolveGenFormat()
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("resolveGenFormat(%q, %q) = %q, %v; want %q", tt.out, tt.format, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("resolveGenFormat(%q, %q) succeeded, want error", tt.out, tt.format)
		}
	}
	genOut, genFormat = "-", ""
}
