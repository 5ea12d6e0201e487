// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracelab/cardscope/pkg/sdbus"
	"github.com/tracelab/cardscope/pkg/trace"
)

var (
	genOut        string
	genFormat     string
	genOversample int
	genDataNibble uint8
)

var genCmd = &cobra.Command{
	Use:   "gen [script]",
	Short: "Generate a synthetic bus trace",
	Long: `Generate a synthetic SD card bus trace, either from a script or as the
canonical card initialization conversation (CMD0 through CMD7).

Script files contain one directive per line (# starts a comment):

  quiet N              clock stopped, command line idle, N samples
  idle N               N idle clock cycles
  cmd INDEX ARG        48-bit host command
  r1 INDEX STATUS      48-bit normal response
  r3 OCR               48-bit OCR response
  r6 RCA STATUS        48-bit published-RCA response
  r2 HEX128            136-bit CID/CSD response (32 hex digit register)
  partial INDEX ARG N  first N bits of a command frame, then stop

Numbers accept 0x prefixes. Output format is inferred from the --out
extension (.csv or .sdcap) unless --format is given; stdout defaults to CSV.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGen,
}

func init() {
	rootCmd.AddCommand(genCmd)
	genCmd.Flags().StringVarP(&genOut, "out", "o", "-", "Output file (- for stdout)")
	genCmd.Flags().StringVar(&genFormat, "format", "", "Output format: csv or sdcap")
	genCmd.Flags().IntVar(&genOversample, "oversample", 4, "Samples per clock half-period")
	genCmd.Flags().Uint8Var(&genDataNibble, "data", 0, "Level pattern for the 4-bit data bus")
}

func runGen(cmd *cobra.Command, args []string) error {
	b := sdbus.NewTraceBuilder(genOversample)
	b.SetDataNibble(genDataNibble)

	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		if err := buildFromScript(b, f); err != nil {
			return err
		}
	} else {
		buildInitConversation(b)
	}

	samples := b.Samples()
	logger.Debug().Int("samples", len(samples)).Msg("trace generated")

	format, err := resolveGenFormat()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if genOut != "-" {
		f, err := os.Create(genOut)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "sdcap":
		return trace.WriteCapture(out, trace.NewCapture(samplePeriod, samples))
	default:
		w := trace.NewCSVWriter(out)
		for _, s := range samples {
			if err := w.Write(s); err != nil {
				return err
			}
		}
		return w.Flush()
	}
}

func resolveGenFormat() (string, error) {
	format := strings.ToLower(genFormat)
	if format == "" {
		if strings.EqualFold(filepath.Ext(genOut), ".sdcap") {
			format = "sdcap"
		} else {
			format = "csv"
		}
	}
	switch format {
	case "csv", "sdcap":
		return format, nil
	default:
		return "", fmt.Errorf("unknown format %q (use csv or sdcap)", genFormat)
	}
}

// buildInitConversation emits the canonical card initialization sequence:
// reset, interface condition, OCR negotiation, identification and selection.
func buildInitConversation(b *sdbus.TraceBuilder) {
	b.Quiet(16)
	b.IdleClocks(8)

	// GO_IDLE_STATE
	b.Frame(sdbus.CommandFrameBits(0, 0))

	// SEND_IF_COND, echoed check pattern
	b.Frame(sdbus.CommandFrameBits(8, 0x1AA))
	b.Frame(sdbus.ResponseR1Bits(8, 0x1AA))

	// APP_CMD then SD_SEND_OP_COND
	b.Frame(sdbus.CommandFrameBits(55, 0))
	b.Frame(sdbus.ResponseR1Bits(55, 0x0120))
	b.Frame(sdbus.CommandFrameBits(41, 0x40100000))
	b.Frame(sdbus.ResponseR3Bits(0xC0FF8000))

	// ALL_SEND_CID
	b.Frame(sdbus.CommandFrameBits(2, 0))
	cid := sdbus.NewBitVector()
	for i := 0; i < 128; i++ {
		_ = cid.Append(i % 2)
	}
	if r2, err := sdbus.ResponseR2Bits(cid); err == nil {
		b.Frame(r2)
	}

	// SEND_RELATIVE_ADDR
	b.Frame(sdbus.CommandFrameBits(3, 0))
	b.Frame(sdbus.ResponseR6Bits(0xB368, 0x0500))

	// SELECT_CARD
	b.Frame(sdbus.CommandFrameBits(7, 0xB3680000))
	b.Frame(sdbus.ResponseR1Bits(7, 0x0700))

	b.IdleClocks(8)
}

// buildFromScript applies script directives to the builder.
func buildFromScript(b *sdbus.TraceBuilder, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		directive, args := strings.ToLower(fields[0]), fields[1:]

		if err := applyDirective(b, directive, args); err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func applyDirective(b *sdbus.TraceBuilder, directive string, args []string) error {
	switch directive {
	case "quiet":
		n, err := parseCount(args, 0, 1)
		if err != nil {
			return err
		}
		b.Quiet(int(n))

	case "idle":
		n, err := parseCount(args, 0, 1)
		if err != nil {
			return err
		}
		b.IdleClocks(int(n))

	case "cmd", "r1":
		if len(args) != 2 {
			return fmt.Errorf("%s needs an index and an argument", directive)
		}
		index, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil || index > 63 {
			return fmt.Errorf("invalid command index %q", args[0])
		}
		arg, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid argument %q", args[1])
		}
		if directive == "cmd" {
			b.Frame(sdbus.CommandFrameBits(uint8(index), uint32(arg)))
		} else {
			b.Frame(sdbus.ResponseR1Bits(uint8(index), uint32(arg)))
		}

	case "r3":
		ocr, err := parseCount(args, 32, 1)
		if err != nil {
			return err
		}
		b.Frame(sdbus.ResponseR3Bits(uint32(ocr)))

	case "r6":
		if len(args) != 2 {
			return fmt.Errorf("r6 needs an RCA and a card status")
		}
		rca, err := strconv.ParseUint(args[0], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid RCA %q", args[0])
		}
		status, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid card status %q", args[1])
		}
		b.Frame(sdbus.ResponseR6Bits(uint16(rca), uint16(status)))

	case "r2":
		if len(args) != 1 {
			return fmt.Errorf("r2 needs a 32 hex digit register value")
		}
		register, err := parseRegisterHex(args[0])
		if err != nil {
			return err
		}
		r2, err := sdbus.ResponseR2Bits(register)
		if err != nil {
			return err
		}
		b.Frame(r2)

	case "partial":
		if len(args) != 3 {
			return fmt.Errorf("partial needs an index, an argument and a bit count")
		}
		index, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil || index > 63 {
			return fmt.Errorf("invalid command index %q", args[0])
		}
		arg, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid argument %q", args[1])
		}
		n, err := strconv.ParseUint(args[2], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid bit count %q", args[2])
		}
		b.PartialFrame(sdbus.CommandFrameBits(uint8(index), uint32(arg)), int(n))

	default:
		return fmt.Errorf("unknown directive %q", directive)
	}
	return nil
}

func parseCount(args []string, bits int, want int) (uint64, error) {
	if len(args) != want {
		return 0, fmt.Errorf("expected %d argument(s), got %d", want, len(args))
	}
	if bits == 0 {
		bits = 31
	}
	v, err := strconv.ParseUint(args[0], 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", args[0])
	}
	return v, nil
}

// parseRegisterHex parses a 32 hex digit string into a 128-bit vector.
func parseRegisterHex(s string) (*sdbus.BitVector, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != 32 {
		return nil, fmt.Errorf("register must be 32 hex digits, got %d", len(s))
	}
	v := sdbus.NewBitVector()
	for _, c := range s {
		nib, err := strconv.ParseUint(string(c), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		for j := 3; j >= 0; j-- {
			if err := v.Append(int(nib >> j & 1)); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}
