// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/penumbra/internal/config"
	"github.com/Thermoquad/penumbra/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Daemon flags
	configFile string
	logLevel   string

	cfg    *config.Config
	appLog *logger.Logger
)

// flagParams maps persistent flags onto config parameters
var flagParams = map[string]string{
	"port":      "serialPort",
	"baud":      "serialBaud",
	"log-level": "logLevel",
}

var rootCmd = &cobra.Command{
	Use:   "penumbra",
	Short: "AC dimmer controller",
	Long: `Penumbra - Controller for a phase-cut AC dimmer.

Drives the dimming co-processor over its UART link, reads wall switches,
guards against overheating and bridges the light to an MQTT broker.
The remaining commands talk to the co-processor directly for bring-up
and diagnostics.

Connection modes:
  Serial:    --port /dev/ttyS1 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the PENUMBRA_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Parameters are read from --config (or /etc/penumbra/penumbra.yaml) and can be
overridden with PENUMBRA_<PARAMETER> environment variables.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// setup loads the configuration and builds the logger for every command
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.BindFlags(cmd.Flags(), flagParams); err != nil {
		return err
	}

	opts := logger.DefaultOptions()
	opts.Level = cfg.Value("logLevel")
	opts.Output = logger.ParseOutput(cfg.Value("logOutput"))
	opts.File = cfg.Value("logFile")
	appLog, err = logger.New(opts)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if f := cfg.File(); f != "" {
		appLog.Debug("config loaded", zap.String("file", f))
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if appLog != nil {
			_ = appLog.Close()
		}
	}()
	return rootCmd.Execute()
}
