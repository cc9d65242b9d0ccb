// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// StatusMessageType tags status snapshots on the wire
const StatusMessageType = 0x40

// Status is the periodic snapshot published as [type, map] CBOR with
// integer keys.
type Status struct {
	Hostname    string  `cbor:"0,keyasint"`
	Brightness  uint16  `cbor:"1,keyasint"`
	Reported    uint16  `cbor:"2,keyasint"`
	Min         uint16  `cbor:"3,keyasint"`
	Max         uint16  `cbor:"4,keyasint"`
	Wattage     uint16  `cbor:"5,keyasint"`
	On          bool    `cbor:"6,keyasint"`
	Blinking    bool    `cbor:"7,keyasint"`
	Temperature float64 `cbor:"8,keyasint,omitempty"`
	Overheat    bool    `cbor:"9,keyasint"`
	Uptime      uint64  `cbor:"10,keyasint"` // seconds
	Frames      uint64  `cbor:"11,keyasint"`
	LinkErrors  uint64  `cbor:"12,keyasint"`
}

type statusEnvelope struct {
	_       struct{} `cbor:",toarray"`
	Type    uint8
	Payload Status
}

// EncodeStatus encodes s as a tagged CBOR message.
func EncodeStatus(s Status) ([]byte, error) {
	data, err := cbor.Marshal(statusEnvelope{Type: StatusMessageType, Payload: s})
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return data, nil
}

// DecodeStatus is the inverse of EncodeStatus.
func DecodeStatus(data []byte) (Status, error) {
	if len(data) == 0 {
		return Status{}, fmt.Errorf("empty CBOR payload")
	}
	var env statusEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Status{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if env.Type != StatusMessageType {
		return Status{}, fmt.Errorf("unexpected message type 0x%02X", env.Type)
	}
	return env.Payload, nil
}

// PublishStatus sends s to the status topic.
func (b *Bridge) PublishStatus(s Status) error {
	data, err := EncodeStatus(s)
	if err != nil {
		return err
	}
	return b.publish(TopicStatus, data)
}
