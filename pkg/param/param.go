// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package param parses the textual configuration values handed over by the
// configuration provider. Every setter in the dimmer goes through these
// helpers, so malformed input is rejected the same way everywhere and the
// previous value is kept.
package param

// ParseUint parses a decimal string of at most maxDigits digits.
// It reports false for empty input, any non-digit character or input
// longer than maxDigits.
func ParseUint(s string, maxDigits int) (uint64, bool) {
	if len(s) == 0 || len(s) > maxDigits {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
