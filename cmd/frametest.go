// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
	frameTestProbe   bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid link frame",
	Long: `Wait for a valid co-processor frame on the connection until timeout.

The co-processor only talks when spoken to, so by default a GET_VERSION
request is sent first (disable with --probe=false to listen passively).
Invalid bytes are ignored until a complete frame with a matching checksum
arrives.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestProbe, "probe", true, "Send GET_VERSION before listening")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Penumbra - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	if frameTestProbe {
		req, err := dimlink.NewEncoder().Encode(0, dimlink.CmdGetVersion, nil)
		if err == nil {
			_, err = conn.Write(req)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent GET_VERSION probe\n")
	}
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := dimlink.NewDecoder()
	buf := make([]byte, 128)

	// Channel for frame reception
	frameChan := make(chan *dimlink.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		invalid := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors, just count them
					invalid++
					continue
				}
				if frame != nil {
					if invalid > 0 {
						fmt.Printf("(skipped %d decode errors before sync)\n", invalid)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s (0x%02X)\n", frame.Command(), uint8(frame.Command()))
		fmt.Printf("  Counter: %d\n", frame.Counter())
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  Checksum: 0x%04X\n", frame.Checksum())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
