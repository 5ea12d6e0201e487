// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tracelab/cardscope/pkg/sdbus"
	"github.com/tracelab/cardscope/pkg/trace"
)

// sampleSource yields bus samples one at a time, io.EOF at end of input.
type sampleSource interface {
	Next() (sdbus.Sample, error)
}

// openedSource is a resolved sample source plus what a command needs to
// describe and tear it down.
type openedSource struct {
	src    sampleSource
	period time.Duration
	info   string
	live   bool
	close  func() error
}

// openSampleSource resolves the persistent flags into a sample source:
// a trace file when --input is set, otherwise a live probe link.
func openSampleSource() (*openedSource, error) {
	if inputFile != "" {
		return openTraceFile(inputFile)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("connection", connInfo).Msg("probe link opened")

	return &openedSource{
		src:    trace.NewPackedReader(conn),
		period: samplePeriod,
		info:   connInfo,
		live:   true,
		close:  conn.Close,
	}, nil
}

func openTraceFile(path string) (*openedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".sdcap") {
		capture, err := trace.ReadCapture(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		// The capture records its own sample period; an explicit
		// --sample-period still wins.
		period := capture.SamplePeriod()
		if rootCmd.PersistentFlags().Changed("sample-period") {
			period = samplePeriod
		}
		logger.Debug().Int("samples", len(capture.Samples)).Dur("period", period).Msg("capture loaded")

		return &openedSource{
			src:    trace.NewPackedReader(bytes.NewReader(capture.Samples)),
			period: period,
			info:   fmt.Sprintf("Capture: %s", path),
			close:  func() error { return nil },
		}, nil
	}

	reader, err := trace.NewCSVReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &openedSource{
		src:    reader,
		period: samplePeriod,
		info:   fmt.Sprintf("CSV: %s", path),
		close:  f.Close,
	}, nil
}
