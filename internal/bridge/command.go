// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "fmt"

// CommandKind identifies a request received from the broker
type CommandKind uint8

// Command kinds
const (
	CommandLightOn CommandKind = iota + 1
	CommandLightOff
	CommandStartBlink
	CommandStartFastBlink
	CommandStopBlink
	CommandBlinkDuration
)

var commandNames = map[CommandKind]string{
	CommandLightOn:        "LIGHT_ON",
	CommandLightOff:       "LIGHT_OFF",
	CommandStartBlink:     "START_BLINK",
	CommandStartFastBlink: "START_FAST_BLINK",
	CommandStopBlink:      "STOP_BLINK",
	CommandBlinkDuration:  "BLINK_DURATION",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// Command is a broker request with its raw payload
type Command struct {
	Kind    CommandKind
	Payload string
}

var commandTopics = map[string]CommandKind{
	"subMqttLightOn":        CommandLightOn,
	"subMqttLightAllOn":     CommandLightOn,
	"subMqttLightOff":       CommandLightOff,
	"subMqttLightAllOff":    CommandLightOff,
	"subMqttStartBlink":     CommandStartBlink,
	"subMqttStartFastBlink": CommandStartFastBlink,
	"subMqttStopBlink":      CommandStopBlink,
	"subMqttBlinkDuration":  CommandBlinkDuration,
}

// ParseCommand maps a subscribed parameter id to a Command.
func ParseCommand(id, payload string) (Command, bool) {
	kind, ok := commandTopics[id]
	if !ok {
		return Command{}, false
	}
	return Command{Kind: kind, Payload: payload}, true
}
