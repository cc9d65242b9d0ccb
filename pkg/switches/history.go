// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package switches

import "fmt"

// HistorySize is the number of (level, duration) samples kept per switch
const HistorySize = 5

// Duration limits in ticks
const (
	MaxDuration       = 254
	SaturatedDuration = 255 // power-on value, older than anything observable
)

// Sample is a level and the number of ticks it has persisted
type Sample struct {
	Level    Level
	Duration uint8
}

// History is a fixed ring of the last HistorySize samples.
// Index 0 is the oldest slot and index HistorySize-1 the newest.
type History struct {
	slots [HistorySize]Sample
	head  int // physical index of the oldest slot
}

// NewHistory returns a history filled with the power-on level.
func NewHistory(initial Level) History {
	var h History
	for i := range h.slots {
		h.slots[i] = Sample{Level: initial, Duration: SaturatedDuration}
	}
	return h
}

// At returns the sample at logical index i (0 oldest).
func (h *History) At(i int) Sample {
	if i < 0 || i >= HistorySize {
		panic(fmt.Sprintf("switches: history index %d out of range", i))
	}
	return h.slots[(h.head+i)%HistorySize]
}

// Newest returns the most recent sample.
func (h *History) Newest() Sample {
	return h.At(HistorySize - 1)
}

func (h *History) newest() *Sample {
	return &h.slots[(h.head+HistorySize-1)%HistorySize]
}

// push drops the oldest sample and appends level with a duration of 1.
func (h *History) push(level Level) {
	h.slots[h.head] = Sample{Level: level, Duration: 1}
	h.head = (h.head + 1) % HistorySize
}

// Step records one tick of raw input and reports whether a new sample was
// appended. Until the newest sample has lasted debounce ticks its duration
// simply grows, whatever the input does.
func (h *History) Step(level Level, debounce uint8) bool {
	n := h.newest()
	switch {
	case n.Duration < debounce:
		n.Duration++
	case level != n.Level:
		h.push(level)
		return true
	case n.Duration < MaxDuration:
		n.Duration++
	}
	return false
}
