// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tracelab/cardscope/pkg/sdbus"
	"github.com/tracelab/cardscope/pkg/trace"
)

func drainSource(t *testing.T, src sampleSource) []sdbus.Sample {
	t.Helper()
	var samples []sdbus.Sample
	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return samples
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		samples = append(samples, s)
	}
}

func TestOpenTraceFile_CSV(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte("clk,cmd,data\n0,1,0\n1,1,3\n"), 0o644); err != nil {
		t.Fatalf("write trace: %v", err)
	}

	source, err := openTraceFile(path)
	if err != nil {
		t.Fatalf("openTraceFile failed: %v", err)
	}
	defer source.close()

	if source.live {
		t.Error("file source reported as live")
	}
	if source.period != sdbus.DefaultSamplePeriod {
		t.Errorf("period = %v, want flag default", source.period)
	}

	want := []sdbus.Sample{{Clk: 0, Cmd: 1, Data: 0}, {Clk: 1, Cmd: 1, Data: 3}}
	if diff := cmp.Diff(want, drainSource(t, source.src)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenTraceFile_Capture(t *testing.T) {
	resetFlags(t)
	samples := []sdbus.Sample{{Clk: 1, Cmd: 0, Data: 0xA}, {Clk: 0, Cmd: 1, Data: 0x5}}

	path := filepath.Join(t.TempDir(), "trace.sdcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	if err := trace.WriteCapture(f, trace.NewCapture(40*time.Nanosecond, samples)); err != nil {
		t.Fatalf("WriteCapture failed: %v", err)
	}
	f.Close()

	source, err := openTraceFile(path)
	if err != nil {
		t.Fatalf("openTraceFile failed: %v", err)
	}
	defer source.close()

	// Capture files carry their own sample period
	if source.period != 40*time.Nanosecond {
		t.Errorf("period = %v, want 40ns from capture", source.period)
	}
	if diff := cmp.Diff(samples, drainSource(t, source.src)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenTraceFile_Missing(t *testing.T) {
	resetFlags(t)
	if _, err := openTraceFile(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected error for missing trace file")
	}
}
