// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect and analyze frame anomalies with statistics",
	Long: `Track decode failures, truncated frames and anomalous field values with
running statistics.

This command validates each reconstructed frame and detects:
  - Decode failures and malformed sample values
  - Stop/start bit violations
  - Non-conforming reserved fields (R2 reserved bits, R3 trailer)
  - Responses assigning the null relative card address

By default, only anomalous frames are displayed. Use --show-all to display
valid frames too.

Frames are validated as they complete, with anomalies highlighted immediately
and periodic statistics summaries displayed at configurable intervals.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just anomalies)")
	analyzeCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	analyzeCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	source, err := openSampleSource()
	if err != nil {
		return err
	}
	defer source.close()

	if useTUI {
		return runTUIMode(source)
	}
	return runTextMode(source)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationErrors prints validation findings for a frame
func printValidationErrors(frame *sdbus.Frame, errors []sdbus.ValidationError) {
	timestamp := frame.Timestamp().Format("15:04:05.000")
	name := sdbus.CommandName(frame.CommandIndex(), frame.IsAppCommand())

	fmt.Printf("[%s] \033[1;33mVALIDATION:\033[0m %s (%s) at line %d\n",
		timestamp, name, frame.Kind(), frame.Line())

	for i, err := range errors {
		switch err.Type {
		case sdbus.AnomalyStopBit:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if stop, ok := err.Details["stop"].(int); ok {
				fmt.Printf("    stop=%d (must be 1)\n", stop)
			}

		case sdbus.AnomalyStartBits:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if st, ok := err.Details["start_transfer"].(uint8); ok {
				fmt.Printf("    start_transfer=0b%02b\n", st)
			}

		case sdbus.AnomalyReservedBits:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if reserved, ok := err.Details["reserved"].(uint8); ok {
				fmt.Printf("    reserved=0x%02X (must be 0x3F)\n", reserved)
			}
			if trailer, ok := err.Details["trailer"].(uint8); ok {
				fmt.Printf("    trailer=0x%02X (must be 0xFF)\n", trailer)
			}

		case sdbus.AnomalyNullRCA:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Card status: 0x%04X\n", frame.CardStatus())

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTUIMode runs analysis in TUI mode
func runTUIMode(source *openedSource) error {
	decoder := sdbus.NewDecoder(source.period)

	// Create TUI program
	m := initialModel(source.info, source.period, statsInterval, showAll)
	p := tea.NewProgram(m)

	decoder.ClockRateFunc = func(hz float64) {
		p.Send(clockRateMsg(hz))
	}

	// Sample reader goroutine
	go func() {
		for {
			sample, err := source.src.Next()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
					p.Send(streamEndMsg{truncation: decoder.Finish()})
					return
				}
				if source.live {
					logger.Error().Err(err).Msg("read error")
					continue
				}
				p.Send(frameMsg{decodeErr: err})
				p.Send(streamEndMsg{truncation: decoder.Finish()})
				return
			}

			frame, decodeErr := decoder.ProcessSample(sample)
			if decodeErr != nil {
				p.Send(frameMsg{decodeErr: decodeErr})
			} else if frame != nil {
				p.Send(frameMsg{
					frame:            frame,
					validationErrors: sdbus.ValidateFrame(frame),
				})
			}
		}
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// runTextMode runs analysis in text mode (original behavior)
func runTextMode(source *openedSource) error {
	fmt.Printf("Cardscope - Analysis Mode\n")
	fmt.Printf("Input: %s\n", source.info)
	fmt.Printf("Sample period: %v\n", source.period)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	if source.live {
		fmt.Printf("Press Ctrl+C to exit\n")
	}
	fmt.Println()

	decoder := sdbus.NewDecoder(source.period)
	stats := sdbus.NewStatistics()

	// Channel for non-blocking sample reads
	samples := make(chan sdbus.Sample, 1024)
	readErrs := make(chan error, 1)
	go func() {
		defer close(samples)
		for {
			sample, err := source.src.Next()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
					return
				}
				if source.live {
					logger.Error().Err(err).Msg("read error")
					continue
				}
				readErrs <- err
				return
			}
			samples <- sample
		}
	}()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case sample, ok := <-samples:
			if !ok {
				// Stream ended: report truncation and final statistics
				if err := decoder.Finish(); err != nil {
					stats.RecordTruncation()
					fmt.Printf("[WARN] %v\n", err)
				}
				fmt.Println()
				fmt.Print(stats.String())

				select {
				case err := <-readErrs:
					return err
				default:
					return nil
				}
			}

			frame, decodeErr := decoder.ProcessSample(sample)
			if decodeErr != nil {
				if errors.Is(decodeErr, sdbus.ErrInvalidBit) {
					stats.RecordInvalidSample()
				} else {
					stats.Update(nil, decodeErr, nil)
				}
				printDecodeError(decodeErr)
			} else if frame != nil {
				validationErrors := sdbus.ValidateFrame(frame)
				stats.Update(frame, nil, validationErrors)

				// Print frame or anomaly based on mode
				if len(validationErrors) > 0 {
					printValidationErrors(frame, validationErrors)
				} else if showAll {
					fmt.Print(sdbus.FormatFrame(frame))
				}
			}

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
