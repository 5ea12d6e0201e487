// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

// Package trace reads and writes logic-analyzer sample traces in the
// formats cardscope understands: analyzer CSV exports, the packed
// one-byte-per-sample stream used on live links, and the .sdcap
// capture container.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

// CSV column names as exported by the analyzer.
const (
	columnClk  = "clk"
	columnCmd  = "cmd"
	columnData = "data"
)

// CSVReader reads bus samples from an analyzer CSV export.
// The first row must be a header naming the clk, cmd and data columns;
// column order is not significant. Data values are hexadecimal nibbles.
type CSVReader struct {
	r    *csv.Reader
	clk  int
	cmd  int
	data int
	line int
}

// NewCSVReader reads the header row and resolves column positions.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	c := &CSVReader{r: cr, clk: -1, cmd: -1, data: -1, line: sdbus.FirstSampleLine - 1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnClk:
			c.clk = i
		case columnCmd:
			c.cmd = i
		case columnData:
			c.data = i
		}
	}
	if c.clk < 0 || c.cmd < 0 || c.data < 0 {
		return nil, fmt.Errorf("CSV header missing required columns (need %s, %s, %s): %v",
			columnClk, columnCmd, columnData, header)
	}
	return c, nil
}

// Next returns the next sample, or io.EOF at end of input.
// Parse failures name the offending line.
func (c *CSVReader) Next() (sdbus.Sample, error) {
	record, err := c.r.Read()
	if err != nil {
		return sdbus.Sample{}, err
	}
	c.line++

	clk, err := parseBit(record, c.clk)
	if err != nil {
		return sdbus.Sample{}, fmt.Errorf("line %d: %s: %w", c.line, columnClk, err)
	}
	cmd, err := parseBit(record, c.cmd)
	if err != nil {
		return sdbus.Sample{}, fmt.Errorf("line %d: %s: %w", c.line, columnCmd, err)
	}
	data, err := parseNibble(record, c.data)
	if err != nil {
		return sdbus.Sample{}, fmt.Errorf("line %d: %s: %w", c.line, columnData, err)
	}

	return sdbus.Sample{Clk: clk, Cmd: cmd, Data: data}, nil
}

// Line returns the line number of the most recently returned sample.
// The header is line 1, so the first sample is line 2.
func (c *CSVReader) Line() int {
	return c.line
}

func parseBit(record []string, idx int) (uint8, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("short record (%d fields)", len(record))
	}
	v, err := strconv.ParseUint(strings.TrimSpace(record[idx]), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid bit value %q", record[idx])
	}
	return uint8(v), nil
}

func parseNibble(record []string, idx int) (uint8, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("short record (%d fields)", len(record))
	}
	v, err := strconv.ParseUint(strings.TrimSpace(record[idx]), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex nibble %q", record[idx])
	}
	return uint8(v), nil
}

// CSVWriter writes samples in the same layout NewCSVReader accepts.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter returns a writer targeting w. The header row is written
// on the first Write call.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends one sample row.
func (c *CSVWriter) Write(s sdbus.Sample) error {
	if !c.wroteHeader {
		if err := c.w.Write([]string{columnClk, columnCmd, columnData}); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		c.wroteHeader = true
	}
	record := []string{
		strconv.Itoa(int(s.Clk)),
		strconv.Itoa(int(s.Cmd)),
		strconv.FormatUint(uint64(s.Data), 16),
	}
	return c.w.Write(record)
}

// Flush writes buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
