// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxDrainBytes bounds how much a single drain will read
const maxDrainBytes = MaxFrameSize * 4

// Transport owns the byte stream to the co-processor. Every outbound
// command goes through Transact, which holds the link until the reply has
// been drained, so at most one transaction is ever in flight.
type Transport struct {
	mu sync.Mutex

	rw      io.ReadWriter
	encoder *Encoder
	decoder *Decoder
	counter uint8
	settle  time.Duration
	readBuf []byte

	stats  *Statistics
	logger *zap.Logger
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithSettleDelay sets the quiescence delay between write and drain.
func WithSettleDelay(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.settle = d
	}
}

// WithBufferSize sets the encoder and decoder capacity in bytes.
func WithBufferSize(capacity int) TransportOption {
	return func(t *Transport) {
		t.encoder = NewEncoderSize(capacity)
		t.decoder = NewDecoderSize(capacity)
	}
}

// WithLogger sets the logger used for protocol errors and warnings.
func WithLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStatistics shares a statistics tracker with the transport.
func WithStatistics(stats *Statistics) TransportOption {
	return func(t *Transport) {
		if stats != nil {
			t.stats = stats
		}
	}
}

// NewTransport creates a transport over rw. Reads on rw should return
// (0, nil) or a timeout error once no more bytes are pending.
func NewTransport(rw io.ReadWriter, opts ...TransportOption) *Transport {
	t := &Transport{
		rw:      rw,
		encoder: NewEncoder(),
		decoder: NewDecoder(),
		settle:  DefaultSettleDelay,
		readBuf: make([]byte, 64),
		stats:   NewStatistics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Statistics returns the transport's statistics tracker.
func (t *Transport) Statistics() *Statistics {
	return t.stats
}

// Counter returns the counter that will be carried by the next frame.
func (t *Transport) Counter() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// Transact writes one command frame, waits for the co-processor's reply
// window and returns every frame decoded while draining the link.
func (t *Transport) Transact(ctx context.Context, cmd Command, payload []byte) ([]*Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sent := t.counter
	wire, err := t.encoder.Encode(sent, cmd, payload)
	if err != nil {
		return nil, err
	}
	if _, err := t.rw.Write(wire); err != nil {
		return nil, fmt.Errorf("write %s: %w", cmd, err)
	}
	t.counter++
	t.stats.RecordTransaction(len(wire))

	t.logger.Debug("frame sent",
		zap.Stringer("cmd", cmd),
		zap.Uint8("counter", sent),
		zap.Int("len", len(payload)))

	if t.settle > 0 {
		if err := sleepContext(ctx, t.settle); err != nil {
			return nil, err
		}
	}

	frames, err := t.drain()
	for _, f := range frames {
		if f.Counter() != sent {
			t.stats.RecordCounterWarning()
			t.logger.Warn("reply counter mismatch",
				zap.Stringer("cmd", f.Command()),
				zap.Uint8("expected", sent),
				zap.Uint8("got", f.Counter()))
		}
	}
	return frames, err
}

// Poll drains bytes that arrived outside of a transaction.
func (t *Transport) Poll(ctx context.Context) ([]*Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.drain()
}

// Feed pushes one received byte through the decoder.
func (t *Transport) Feed(b byte) (*Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.feed(b)
}

func (t *Transport) feed(b byte) (*Frame, error) {
	frame, err := t.decoder.DecodeByte(b)
	t.stats.Update(frame, err)
	if err != nil {
		t.logger.Warn("frame discarded", zap.Error(err))
	}
	return frame, err
}

// drain reads until the link is quiet. Decode errors are logged and
// counted; only I/O failures are returned.
func (t *Transport) drain() ([]*Frame, error) {
	var frames []*Frame
	total := 0
	for total < maxDrainBytes {
		n, err := t.rw.Read(t.readBuf)
		if n > 0 {
			total += n
			t.stats.RecordReceived(n)
			for _, b := range t.readBuf[:n] {
				if frame, _ := t.feed(b); frame != nil {
					frames = append(frames, frame)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return frames, nil
			}
			return frames, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return frames, nil
}
