// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Thermoquad/penumbra/internal/hal"
	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/Thermoquad/penumbra/pkg/light"
	"github.com/spf13/cobra"
)

var (
	sendTimeout     int
	dimmingEdge     string
	dimmingDebounce uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one command to the co-processor",
	Long: `Send a single request to the co-processor and print the reply.

Useful for bring-up: read the firmware version, poll the state, set a
brightness or push the dimming parameters without running the daemon.`,
}

var sendVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Read the co-processor firmware version",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *dimlink.Client, args []string) error {
		v, err := c.GetVersion(ctx)
		if err != nil {
			return err
		}
		status := "ok"
		if !v.Match {
			status = "unexpected"
		}
		fmt.Printf("Firmware: %s (%s)\n", dimlink.FormatHex(v.Version), status)
		return nil
	}),
}

var sendStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Read brightness and load",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *dimlink.Client, args []string) error {
		s, err := c.GetState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Brightness: %d\nWattage: %d W\nRaw: %s\n", s.Brightness, s.Wattage, dimlink.FormatHex(s.Raw))
		return nil
	}),
}

var sendBrightnessCmd = &cobra.Command{
	Use:   "brightness <level>",
	Short: "Set the brightness in profile units",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *dimlink.Client, args []string) error {
		b, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid brightness %q: %w", args[0], err)
		}
		if ceiling := light.LimitsFor(c.Profile().Name).Ceiling; b > uint64(ceiling) {
			return fmt.Errorf("brightness %d out of range 0-%d", b, ceiling)
		}
		if err := c.SetBrightness(ctx, uint16(b)); err != nil {
			return err
		}
		fmt.Printf("Brightness set to %d\n", b)
		return nil
	}),
}

var sendDimmingCmd = &cobra.Command{
	Use:   "dimming",
	Short: "Push the dimming parameters",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *dimlink.Client, args []string) error {
		params := dimlink.DefaultDimmingParameters()
		switch dimmingEdge {
		case "leading":
			params.Edge = dimlink.EdgeLeading
		case "trailing":
			params.Edge = dimlink.EdgeTrailing
		default:
			return fmt.Errorf("unknown edge %q (use leading or trailing)", dimmingEdge)
		}
		params.Debounce = dimlink.ClampFlickerDebounce(dimmingDebounce)

		if err := c.SetDimmingParameters(ctx, params); err != nil {
			var incomplete *dimlink.TransactionIncompleteError
			if errors.As(err, &incomplete) {
				fmt.Printf("Stopped at step %d (%s)\n", incomplete.Step+1, incomplete.Command)
			}
			return err
		}
		fmt.Printf("Dimming: %s edge, debounce %d\n", params.Edge, params.Debounce)
		return nil
	}),
}

var sendResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Pulse the co-processor reset line and read the version",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *dimlink.Client, args []string) error {
		chip, lines, err := openResetLines()
		if err != nil {
			return err
		}
		defer chip.Close()

		v, err := c.Reset(ctx, lines)
		if err != nil {
			return err
		}
		fmt.Printf("Firmware after reset: %s\n", dimlink.FormatHex(v.Version))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.PersistentFlags().IntVar(&sendTimeout, "timeout", 5, "Timeout in seconds")
	sendDimmingCmd.Flags().StringVar(&dimmingEdge, "edge", "trailing", "Phase cut edge (leading, trailing)")
	sendDimmingCmd.Flags().Uint64Var(&dimmingDebounce, "debounce", dimlink.DefaultFlickerDebounce, "Anti-flicker debounce (50-150)")

	sendCmd.AddCommand(sendVersionCmd, sendStateCmd, sendBrightnessCmd, sendDimmingCmd, sendResetCmd)
}

// withClient opens the link for the duration of one send subcommand
func withClient(fn func(ctx context.Context, c *dimlink.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, conn, connInfo, err := openClient()
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Printf("Connection: %s\n", connInfo)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(sendTimeout)*time.Second)
		defer cancel()
		if err := fn(ctx, client, args); err != nil {
			return err
		}
		fmt.Printf("%s\n", client.Transport().Statistics().Snapshot())
		return nil
	}
}

// openResetLines requests the configured NRST and BOOT0 lines
func openResetLines() (*hal.Chip, *hal.ResetLines, error) {
	nrst, err := hal.ParseOffset(cfg.Value("resetLine"))
	if err != nil {
		return nil, nil, err
	}
	boot0, err := hal.ParseOffset(cfg.Value("boot0Line"))
	if err != nil {
		return nil, nil, err
	}
	if nrst < 0 {
		return nil, nil, fmt.Errorf("resetLine is not configured")
	}

	chip, err := hal.Open(cfg.Value("gpioChip"), appLog.Logger)
	if err != nil {
		return nil, nil, err
	}
	lines, err := chip.ResetLines(nrst, boot0)
	if err != nil {
		chip.Close()
		return nil, nil, err
	}
	return chip, lines, nil
}
