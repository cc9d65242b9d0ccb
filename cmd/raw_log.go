// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/spf13/cobra"
)

var (
	rawLogStatsInterval int
	rawLogHex           bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display co-processor link frames as they arrive.

Every frame is shown with timestamp, counter, command and decoded payload.
Decode errors (bad markers, checksum mismatches, overflows) are printed
inline and counted. Use --stats-interval to print running statistics.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogStatsInterval, "stats-interval", 0, "Statistics interval in seconds (0 = off)")
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print each frame's raw bytes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Penumbra - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	profile := dimlink.ProfileByName(cfg.Value("profile"))
	decoder := dimlink.NewDecoder()
	stats := dimlink.NewStatistics()
	buf := make([]byte, 128)
	lastStats := time.Now()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}
		stats.RecordReceived(n)

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err == nil && frame == nil {
				continue
			}
			stats.Update(frame, err)
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			fmt.Print(dimlink.FormatFrame(profile, frame))
			if rawLogHex {
				fmt.Printf("  Raw: %s\n", dimlink.FormatHex(frame.Bytes()))
			}
		}

		if rawLogStatsInterval > 0 && time.Since(lastStats) >= time.Duration(rawLogStatsInterval)*time.Second {
			lastStats = time.Now()
			fmt.Printf("\n%s\n\n", stats.Snapshot())
		}
	}
}
