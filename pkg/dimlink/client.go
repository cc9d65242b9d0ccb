// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoReply is returned by queries when the co-processor stayed silent.
var ErrNoReply = errors.New("no reply from co-processor")

// TransactionIncompleteError reports a multi-frame sequence that stopped
// partway. Nothing is retried; the caller must reissue the whole sequence.
type TransactionIncompleteError struct {
	Step    int // zero-based index of the failing frame
	Command Command
	Err     error
}

func (e *TransactionIncompleteError) Error() string {
	return fmt.Sprintf("transaction incomplete at step %d (%s): %v", e.Step+1, e.Command, e.Err)
}

func (e *TransactionIncompleteError) Unwrap() error {
	return e.Err
}

// StateObserver receives brightness and load updates decoded from replies.
type StateObserver interface {
	ObserveState(brightness uint16, wattage uint16)
}

// ResetLines drives the co-processor reset and boot-select pins.
type ResetLines interface {
	SetReset(level int) error
	SetBoot0(level int) error
}

// Client maps semantic operations onto transactions.
type Client struct {
	transport *Transport
	profile   Profile
	observer  StateObserver
	logger    *zap.Logger
}

// NewClient creates a client for the given device profile.
func NewClient(t *Transport, p Profile, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: t, profile: p, logger: logger}
}

// SetObserver registers the receiver of decoded state replies.
func (c *Client) SetObserver(o StateObserver) {
	c.observer = o
}

// Profile returns the device profile.
func (c *Client) Profile() Profile {
	return c.profile
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// GetVersion queries the co-processor firmware identifier.
func (c *Client) GetVersion(ctx context.Context) (VersionReply, error) {
	replies, err := c.transact(ctx, CmdGetVersion, nil)
	if err != nil {
		return VersionReply{}, err
	}
	for _, r := range replies {
		if v, ok := r.(VersionReply); ok {
			return v, nil
		}
	}
	return VersionReply{}, ErrNoReply
}

// GetState queries brightness and load.
func (c *Client) GetState(ctx context.Context) (StateReply, error) {
	replies, err := c.transact(ctx, CmdGetState, nil)
	if err != nil {
		return StateReply{}, err
	}
	for _, r := range replies {
		if s, ok := r.(StateReply); ok {
			return s, nil
		}
	}
	return StateReply{}, ErrNoReply
}

// SetBrightness commands brightness b in profile units. A missing
// acknowledgement is logged, not returned.
func (c *Client) SetBrightness(ctx context.Context, b uint16) error {
	_, err := c.transact(ctx, c.profile.BrightnessCommand(), c.profile.BrightnessPayload(b))
	return err
}

// SetDimmingParameters sends the parameter frame followed by the two
// dimming-type frames. The three transactions run in order; a failure
// returns a *TransactionIncompleteError.
func (c *Client) SetDimmingParameters(ctx context.Context, params DimmingParameters) error {
	c.logger.Info("changing dimming parameters",
		zap.Stringer("edge", params.Edge),
		zap.Uint8("debounce", params.Debounce))

	for i, req := range params.Sequence() {
		if _, err := c.transact(ctx, req.Cmd, req.Payload); err != nil {
			return &TransactionIncompleteError{Step: i, Command: req.Cmd, Err: err}
		}
	}
	return nil
}

// Reset pulses the co-processor reset line and checks its firmware version.
func (c *Client) Reset(ctx context.Context, lines ResetLines) (VersionReply, error) {
	if err := lines.SetBoot0(0); err != nil {
		return VersionReply{}, fmt.Errorf("boot0 low: %w", err)
	}
	if err := lines.SetReset(0); err != nil {
		return VersionReply{}, fmt.Errorf("reset low: %w", err)
	}
	if err := sleepContext(ctx, 50*time.Millisecond); err != nil {
		return VersionReply{}, err
	}
	if err := lines.SetReset(1); err != nil {
		return VersionReply{}, fmt.Errorf("reset high: %w", err)
	}
	if err := sleepContext(ctx, 50*time.Millisecond); err != nil {
		return VersionReply{}, err
	}
	return c.GetVersion(ctx)
}

// Dispatch decodes frames that arrived outside a transaction.
func (c *Client) Dispatch(frames []*Frame) []Reply {
	return c.dispatch(frames)
}

func (c *Client) transact(ctx context.Context, cmd Command, payload []byte) ([]Reply, error) {
	frames, err := c.transport.Transact(ctx, cmd, payload)
	replies := c.dispatch(frames)
	if err == nil && len(replies) == 0 {
		c.logger.Warn("no reply", zap.Stringer("cmd", cmd))
	}
	return replies, err
}

func (c *Client) dispatch(frames []*Frame) []Reply {
	replies := make([]Reply, 0, len(frames))
	for _, f := range frames {
		reply, err := ParseReply(c.profile, f)
		if err != nil {
			c.logger.Warn("malformed reply", zap.Stringer("cmd", f.Command()), zap.Error(err))
			continue
		}

		switch r := reply.(type) {
		case VersionReply:
			c.logger.Info("co-processor firmware", zap.String("version", hex.EncodeToString(r.Version)))
			if !r.Match {
				c.logger.Warn("unexpected co-processor firmware",
					zap.String("want", hex.EncodeToString(c.profile.VersionID[:])))
			}
		case StateReply:
			c.logger.Debug("state",
				zap.Uint16("brightness", r.Brightness),
				zap.Uint16("wattage", r.Wattage))
			if c.observer != nil {
				c.observer.ObserveState(r.Brightness, r.Wattage)
			}
		case AckReply:
			c.logger.Debug("ack", zap.Stringer("cmd", r.Cmd), zap.String("payload", hex.EncodeToString(r.Payload)))
		case UnknownReply:
			c.transport.Statistics().RecordUnknownCommand()
			c.logger.Warn("unknown command in reply", zap.Stringer("cmd", r.Cmd))
		}
		replies = append(replies, reply)
	}
	return replies
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
