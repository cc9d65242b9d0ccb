// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure co-processor round trips with GET_VERSION",
	Long: `Send GET_VERSION requests to the co-processor and time each reply.

Every round trip includes the settle delay the link waits for replies, so
the times shown are an upper bound of the co-processor's response time.

Useful for verifying:
  - The serial port or WebSocket bridge is wired correctly
  - The co-processor is running the expected firmware
  - Frames flow in both directions without checksum errors

Exit codes:
  0 - All pings answered
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 1, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	client, conn, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()
	if pingCount < 1 {
		pingCount = 1
	}

	fmt.Printf("Penumbra - Link Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(pingTimeout)*time.Second)
		start := time.Now()
		v, err := client.GetVersion(ctx)
		rtt := time.Since(start)
		cancel()

		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
		case !v.Match:
			fmt.Printf("reply from firmware %s (unexpected), rtt=%v\n", dimlink.FormatHex(v.Version), rtt.Round(time.Millisecond))
			successCount++
		default:
			fmt.Printf("reply from firmware %s, rtt=%v\n", dimlink.FormatHex(v.Version), rtt.Round(time.Millisecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(pingCount)*100)
	fmt.Printf("%s\n", client.Transport().Statistics().Snapshot())

	if successCount < pingCount {
		os.Exit(1)
	}
	return nil
}
