// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package switches

// Event is a classified switch gesture
type Event uint8

const (
	EventOff Event = iota
	EventOn
	EventOffOnOff
	EventOnOffOn
	EventShortClick
	EventLongClick
	EventDoubleClick

	// EventNone means no new event, or that the last one was published.
	EventNone Event = 255
)

var eventNames = [...]string{
	EventOff:         "BUTTON_OFF",
	EventOn:          "BUTTON_ON",
	EventOffOnOff:    "BUTTON_OFF_ON_OFF",
	EventOnOffOn:     "BUTTON_ON_OFF_ON",
	EventShortClick:  "BUTTON_SHORT_CLICK",
	EventLongClick:   "BUTTON_LONG_CLICK",
	EventDoubleClick: "BUTTON_DOUBLE_CLICK",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "NONE"
}

// Classify maps the history of one switch to an event. It only reports an
// event on the tick where the deciding sample appears.
func Classify(h *History, topo Topology, longClick uint8) Event {
	rel := topo.Release
	s0, s1, s2, s3, s4 := h.At(0), h.At(1), h.At(2), h.At(3), h.At(4)
	fresh := s4.Duration == 1

	if topo.Type == Toggle {
		switch {
		case s3.Level != rel && s3.Duration < longClick && s4.Level == rel && fresh:
			return EventOffOnOff
		case s3.Level == rel && s3.Duration < longClick && s4.Level != rel && fresh:
			return EventOnOffOn
		case s4.Level != rel && fresh:
			return EventOn
		case s4.Level == rel && fresh:
			return EventOff
		}
		return EventNone
	}

	switch {
	case s0.Level == rel &&
		s1.Level != rel && s1.Duration < longClick &&
		s2.Level == rel && s2.Duration < longClick &&
		s3.Level != rel && s3.Duration < longClick &&
		s4.Level == rel && fresh:
		return EventDoubleClick
	case s3.Level != rel && s3.Duration < longClick && s4.Level == rel && fresh:
		return EventShortClick
	case s3.Level == rel && s4.Level != rel && s4.Duration == longClick:
		return EventLongClick
	}
	return EventNone
}
