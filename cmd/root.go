// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

var (
	// Trace input flags
	inputFile    string
	samplePeriod time.Duration

	// Serial probe flags
	portName string
	baudRate int

	// WebSocket probe flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configFile string
	debugMode  bool

	// Replaced with a console logger once the root command runs.
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "cardscope",
	Short: "SD Card Bus Analyzer",
	Long: `Cardscope - A CLI tool for decoding SD card bus traffic captured on the
clk/cmd/data lines by a logic analyzer.

Reconstructs 48-bit commands and 48/136-bit responses from raw samples and
prints them in human-readable form, with validation and statistics modes for
diagnosing bus-level problems.

Input modes:
  File:      --input capture.csv (analyzer CSV export) or capture.sdcap
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the CARDSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.2.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(cmd); err != nil {
			return err
		}

		level := zerolog.InfoLevel
		if debugMode {
			level = zerolog.DebugLevel
		}
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Str("app", "cardscope").Logger().Level(level)

		if samplePeriod <= 0 {
			return fmt.Errorf("--sample-period must be positive, got %v", samplePeriod)
		}
		return nil
	},
}

func init() {
	// Trace input flags
	rootCmd.PersistentFlags().StringVarP(&inputFile, "input", "i", "", "Trace file (.csv or .sdcap)")
	rootCmd.PersistentFlags().DurationVarP(&samplePeriod, "sample-period", "s", sdbus.DefaultSamplePeriod, "Analyzer sample period")

	// Serial probe flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket probe flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug diagnostics")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
