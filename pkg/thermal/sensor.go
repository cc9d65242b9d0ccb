// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/sensors"
)

// ErrNoSensor is returned when no matching host sensor reports a value
var ErrNoSensor = errors.New("no matching temperature sensor")

// Sensor reads a temperature in Celsius
type Sensor interface {
	Temperature(ctx context.Context) (float64, error)
}

// ADCSensor reads a thermistor through a Linux IIO raw channel file such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type ADCSensor struct {
	Path string
	NTC  NTC
}

// NewADCSensor creates a sensor using DefaultNTC.
func NewADCSensor(path string) *ADCSensor {
	return &ADCSensor{Path: path, NTC: DefaultNTC}
}

// Temperature implements Sensor.
func (s *ADCSensor) Temperature(_ context.Context) (float64, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	adc, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse adc %q: %w", s.Path, err)
	}
	return s.NTC.Celsius(adc), nil
}

// HostSensor reads the hottest host sensor whose key contains Match.
// An empty Match accepts every sensor.
type HostSensor struct {
	Match string

	read func(ctx context.Context) ([]sensors.TemperatureStat, error)
}

// NewHostSensor creates a sensor backed by the host's hwmon readings.
func NewHostSensor(match string) *HostSensor {
	return &HostSensor{Match: match, read: sensors.TemperaturesWithContext}
}

// Temperature implements Sensor.
func (s *HostSensor) Temperature(ctx context.Context) (float64, error) {
	stats, err := s.read(ctx)
	if len(stats) == 0 {
		if err != nil {
			return 0, fmt.Errorf("read host sensors: %w", err)
		}
		return 0, ErrNoSensor
	}

	// partial results come back alongside a warnings error
	found := false
	var hottest float64
	for _, st := range stats {
		if s.Match != "" && !strings.Contains(st.SensorKey, s.Match) {
			continue
		}
		if !found || st.Temperature > hottest {
			hottest = st.Temperature
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %q", ErrNoSensor, s.Match)
	}
	return hottest, nil
}
