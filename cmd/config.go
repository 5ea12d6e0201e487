// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// fileConfig mirrors the persistent connection flags. Values set on the
// command line always win over the config file.
type fileConfig struct {
	Input        string `toml:"input"`
	SamplePeriod string `toml:"sample_period"`
	Port         string `toml:"port"`
	Baud         int    `toml:"baud"`
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	NoSSLVerify  bool   `toml:"no_ssl_verify"`
}

// applyConfigFile overlays --config file values onto flags the user did
// not set explicitly.
func applyConfigFile(cmd *cobra.Command) error {
	if configFile == "" {
		return nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(configFile, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configFile, err)
	}

	flags := cmd.Flags()

	if meta.IsDefined("input") && !flags.Changed("input") {
		inputFile = strings.TrimSpace(raw.Input)
	}

	if meta.IsDefined("sample_period") && !flags.Changed("sample-period") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SamplePeriod))
		if err != nil {
			return fmt.Errorf("parse sample_period: %w", err)
		}
		samplePeriod = d
	}

	if meta.IsDefined("port") && !flags.Changed("port") {
		portName = strings.TrimSpace(raw.Port)
	}

	if meta.IsDefined("baud") && !flags.Changed("baud") {
		baudRate = raw.Baud
	}

	if meta.IsDefined("url") && !flags.Changed("url") {
		wsURL = strings.TrimSpace(raw.URL)
	}

	if meta.IsDefined("username") && !flags.Changed("username") {
		wsUsername = strings.TrimSpace(raw.Username)
	}

	if meta.IsDefined("no_ssl_verify") && !flags.Changed("no-ssl-verify") {
		wsNoSSLVerify = raw.NoSSLVerify
	}

	return nil
}
