// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

var showClockRate bool

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Display decoded bus frames in human-readable format",
	Long: `Decode and display SD card bus frames as they are reconstructed from the
sample stream.

Each command and response is shown with its index, argument and CRC fields,
in the same layout for file traces and live probe links. Use --clock to also
report the bus clock rate whenever the measured value changes.`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&showClockRate, "clock", false, "Report bus clock rate changes")
}

func runDecode(cmd *cobra.Command, args []string) error {
	source, err := openSampleSource()
	if err != nil {
		return err
	}
	defer source.close()

	fmt.Printf("Cardscope - Bus Frame Log\n")
	fmt.Printf("Input: %s\n", source.info)
	fmt.Printf("Sample period: %v\n", source.period)
	if source.live {
		fmt.Printf("Press Ctrl+C to exit\n")
	}
	fmt.Println()

	decoder := sdbus.NewDecoder(source.period)
	if showClockRate {
		decoder.ClockRateFunc = func(hz float64) {
			fmt.Print(sdbus.FormatClockRate(hz))
		}
	}

	for {
		sample, err := source.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				break
			}
			if source.live {
				logger.Error().Err(err).Msg("read error")
				continue
			}
			return err
		}

		frame, err := decoder.ProcessSample(sample)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if frame != nil {
			fmt.Print(sdbus.FormatFrame(frame))
		}
	}

	if err := decoder.Finish(); err != nil {
		fmt.Printf("[WARN] %v\n", err)
	}

	return nil
}
