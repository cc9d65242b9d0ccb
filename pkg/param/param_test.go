// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUint(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		maxDigits int
		want      uint64
		ok        bool
	}{
		{"zero", "0", 3, 0, true},
		{"three digits", "150", 3, 150, true},
		{"leading zeros", "007", 3, 7, true},
		{"too long", "1000", 3, 0, false},
		{"empty", "", 3, 0, false},
		{"sign", "-5", 3, 0, false},
		{"plus sign", "+5", 3, 0, false},
		{"space", " 5", 3, 0, false},
		{"letters", "1a", 3, 0, false},
		{"single digit limit", "12", 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUint(tt.in, tt.maxDigits)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint64(5), Clamp(1, 5, 10))
	assert.Equal(t, uint64(7), Clamp(7, 5, 10))
	assert.Equal(t, uint64(10), Clamp(70, 5, 10))
}
