// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal maps the dimmer's switch inputs, status LED and co-processor
// reset pins onto Linux GPIO character-device lines.
package hal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/penumbra/pkg/switches"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

// ErrChipClosed is returned when requesting lines from a closed chip
var ErrChipClosed = errors.New("gpio chip not open")

// Chip owns a GPIO chip and every line requested from it
type Chip struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  []*gpiocdev.Line
	logger *zap.Logger
}

// Open opens a chip by name, e.g. "gpiochip0".
func Open(name string, logger *zap.Logger) (*Chip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer("penumbra"))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", name, err)
	}
	return &Chip{chip: chip, logger: logger}, nil
}

func (c *Chip) request(offset int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil, ErrChipClosed
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Input requests an edge-watched input line. Its level is tracked from
// edge events so reading it never touches the kernel.
func (c *Chip) Input(offset int) (*Input, error) {
	in := &Input{offset: offset}
	line, err := c.request(offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(in.onEvent),
	)
	if err != nil {
		return nil, err
	}
	v, err := line.Value()
	if err != nil {
		return nil, fmt.Errorf("read line %d: %w", offset, err)
	}
	in.set(v)
	c.logger.Debug("switch input ready", zap.Int("offset", offset), zap.Int("level", v))
	return in, nil
}

// Inputs requests one input per offset.
func (c *Chip) Inputs(offsets []int) ([]switches.Input, error) {
	inputs := make([]switches.Input, 0, len(offsets))
	for _, off := range offsets {
		in, err := c.Input(off)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Output requests an output line driven to initial.
func (c *Chip) Output(offset int, initial int) (*Output, error) {
	line, err := c.request(offset, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, err
	}
	return &Output{line: line}, nil
}

// ResetLines requests the co-processor NRST and BOOT0 lines. A negative
// offset leaves that pin unmanaged.
func (c *Chip) ResetLines(nrst, boot0 int) (*ResetLines, error) {
	r := &ResetLines{}
	if nrst >= 0 {
		out, err := c.Output(nrst, 1)
		if err != nil {
			return nil, err
		}
		r.nrst = out
	}
	if boot0 >= 0 {
		out, err := c.Output(boot0, 0)
		if err != nil {
			return nil, err
		}
		r.boot0 = out
	}
	return r, nil
}

// Close releases every line and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, err)
		}
		c.chip = nil
	}
	return errors.Join(errs...)
}

// Input is a switch line whose level follows edge events
type Input struct {
	offset int
	level  atomic.Uint32
}

// Level implements switches.Input.
func (in *Input) Level() switches.Level {
	return switches.Level(in.level.Load())
}

func (in *Input) set(v int) {
	if v != 0 {
		in.level.Store(uint32(switches.High))
	} else {
		in.level.Store(uint32(switches.Low))
	}
}

func (in *Input) onEvent(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		in.set(1)
	case gpiocdev.LineEventFallingEdge:
		in.set(0)
	}
}

// Output is a single output line
type Output struct {
	line interface{ SetValue(int) error }
}

// SetValue implements switches.Output.
func (o *Output) SetValue(v int) error {
	return o.line.SetValue(v)
}

// ResetLines drives the co-processor reset pins
type ResetLines struct {
	nrst  *Output
	boot0 *Output
}

// SetReset drives NRST.
func (r *ResetLines) SetReset(level int) error {
	if r.nrst == nil {
		return nil
	}
	return r.nrst.SetValue(level)
}

// SetBoot0 drives BOOT0.
func (r *ResetLines) SetBoot0(level int) error {
	if r.boot0 == nil {
		return nil
	}
	return r.boot0.SetValue(level)
}

// ParseOffset parses a single line offset; empty means unused (-1).
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid line offset %q", s)
	}
	return v, nil
}

// ParseOffsets parses a comma separated offset list such as "4,5".
func ParseOffsets(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		v, err := ParseOffset(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
