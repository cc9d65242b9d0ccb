// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(p Profile, f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) ctr=%d len=%d sum=0x%04X\n",
		timestamp, f.Command(), uint8(f.Command()), f.Counter(), f.Length(), f.Checksum())
	return result + FormatPayload(p, f)
}

// FormatPayload formats the payload based on the command
func FormatPayload(p Profile, f *Frame) string {
	reply, err := ParseReply(p, f)
	if err != nil {
		return fmt.Sprintf("  (%v) %s\n", err, FormatHex(f.Payload()))
	}

	switch r := reply.(type) {
	case VersionReply:
		status := "ok"
		if !r.Match {
			status = fmt.Sprintf("expected %s", FormatHex(p.VersionID[:]))
		}
		return fmt.Sprintf("  Firmware: %s (%s)\n", FormatHex(r.Version[:2]), status)
	case StateReply:
		return fmt.Sprintf("  Brightness: %d, Wattage: %d W\n  Raw: %s\n",
			r.Brightness, r.Wattage, FormatHex(r.Raw))
	case AckReply:
		if len(r.Payload) == 0 {
			return "  (no payload)\n"
		}
		if len(r.Payload) > 16 {
			return fmt.Sprintf("  Ack: %d bytes\n", len(r.Payload))
		}
		return fmt.Sprintf("  Ack: %s\n", FormatHex(r.Payload))
	default:
		return fmt.Sprintf("  Payload: %s\n", FormatHex(f.Payload()))
	}
}

// FormatHex renders bytes as space separated hex pairs
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	var s strings.Builder
	for i, b := range data {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	return s.String()
}
