// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the dimmer parameters. Every value is a string at
// this boundary; the packages that consume them validate and clamp.
package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to parameter ids for environment overrides
const EnvPrefix = "PENUMBRA"

// Param is one configurable value
type Param struct {
	ID      string
	Default string
	Help    string
}

// Params is the parameter table, in display order
var Params = []Param{
	// switch
	{"hostname", "", "Hostname reported on the bus"},
	{"switchType", "2", "Switch type (1: push button, 2: toggle)"},
	{"defaultReleaseState", "0", "Release state (0: open/low, 1: closed/high)"},

	// light
	{"minBrightness", "0", "Minimum brightness"},
	{"maxBrightness", "50", "Maximum brightness"},
	{"autoOffTimer", "", "Auto-off timer in seconds, empty to disable"},
	{"dimmingType", "0", "Dimming type (0: keep, 1: leading edge, 2: trailing edge)"},
	{"flickerDebounce", "100", "Anti-flicker debounce (50-150)"},
	{"blinkPattern", "1000,1000", "Blink pattern in ms"},
	{"blinkDuration", "", "Blink duration in seconds, empty for no limit"},
	{"profile", "percent", "Co-processor profile (percent, permille)"},

	// broker
	{"mqttServer", "", "Broker host, empty to disable"},
	{"mqttPort", "1883", "Broker port"},
	{"mqttUser", "", "Broker user"},
	{"mqttPassword", "", "Broker password"},

	// publish
	{"pubMqttBrightnessLevel", "light/penumbra", "Brightness change"},
	{"pubMqttSwitchEvents", "switch/penumbra", "Switch events"},
	{"pubMqttOverheat", "overheat/penumbra", "Overheat alarm"},
	{"pubMqttTemperature", "temperature/penumbra", "Internal temperature"},
	{"pubMqttConnecting", "connecting/penumbra", "Connecting to the broker"},
	{"pubMqttStatus", "status/penumbra", "Status snapshot (CBOR)"},

	// subscribe
	{"subMqttLightOn", "switchOn/penumbra", "Switch on"},
	{"subMqttLightAllOn", "switchOnAll", "Switch on all lights"},
	{"subMqttLightOff", "switchOff/penumbra", "Switch off"},
	{"subMqttLightAllOff", "switchOffAll", "Switch off all lights"},
	{"subMqttStartBlink", "startBlink/penumbra", "Start blinking"},
	{"subMqttStartFastBlink", "startFastBlink/penumbra", "Start fast blinking"},
	{"subMqttStopBlink", "stopBlink/penumbra", "Stop blinking"},
	{"subMqttBlinkDuration", "blinkDuration/penumbra", "Set blink duration"},

	// hardware
	{"serialPort", "/dev/ttyS1", "Co-processor serial port"},
	{"serialBaud", "115200", "Co-processor baud rate"},
	{"gpioChip", "gpiochip0", "GPIO chip"},
	{"switchLines", "4,5", "Switch input line offsets"},
	{"ledLine", "", "Status LED line offset"},
	{"ledActiveLow", "1", "Status LED is active low"},
	{"resetLine", "", "Co-processor NRST line offset"},
	{"boot0Line", "", "Co-processor BOOT0 line offset"},
	{"sensorSource", "host", "Temperature source (adc, host, none)"},
	{"adcPath", "/sys/bus/iio/devices/iio:device0/in_voltage0_raw", "Thermistor ADC channel"},
	{"sensorMatch", "", "Host sensor key filter"},
	{"statePoll", "1000", "State poll period in ms"},

	// debugging
	{"logOutput", "1", "Logging (0: off, 1: console, 3: file, both)"},
	{"logLevel", "info", "Log level"},
	{"logFile", "/var/log/penumbra/penumbra.log", "Log file"},
}

// Config reads parameters from defaults, a config file and the environment.
//
// Readers are served from a copy of the values. viper itself is only
// touched under mu, and the file watcher refreshes the copy through
// Changed.
type Config struct {
	v *viper.Viper

	mu       sync.RWMutex
	values   map[string]string
	snapshot map[string]string // baseline for Changed
}

// New creates a config backed by v, or a fresh viper when v is nil.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	for _, p := range Params {
		v.SetDefault(p.ID, p.Default)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{v: v}
	c.values = c.read()
	c.snapshot = maps.Clone(c.values)
	return c
}

// read collects every parameter from viper. Callers hold mu for writing.
func (c *Config) read() map[string]string {
	out := make(map[string]string, len(Params))
	for _, p := range Params {
		out[p.ID] = c.v.GetString(p.ID)
	}
	return out
}

// Load reads path, or penumbra.yaml from /etc/penumbra and the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("penumbra")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/penumbra")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// File returns the config file in use, empty when none was found.
func (c *Config) File() string {
	return c.v.ConfigFileUsed()
}

// BindFlags binds flags by name. A flag overrides the parameter sharing
// its name only when set on the command line.
func (c *Config) BindFlags(fs *pflag.FlagSet, names map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for flag, id := range names {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := c.v.BindPFlag(id, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	c.values = c.read()
	c.snapshot = maps.Clone(c.values)
	return nil
}

// Value returns a parameter by id. Unknown ids return "".
func (c *Config) Value(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[id]
}

// Set overrides a parameter. Changed reports it on its next call.
func (c *Config) Set(id, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(id, value)
	c.values[id] = value
}

// IDForValue returns the id of the first parameter whose value equals
// value. Subscribed topics are resolved back to their id this way.
func (c *Config) IDForValue(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, p := range Params {
		if c.Value(p.ID) == value {
			return p.ID, true
		}
	}
	return "", false
}

// WithPrefix returns the ids starting with prefix that have a value.
func (c *Config) WithPrefix(prefix string) []string {
	var ids []string
	for _, p := range Params {
		if strings.HasPrefix(p.ID, prefix) && c.Value(p.ID) != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Values returns every parameter keyed by id.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}

// Changed re-reads viper, compares against the last snapshot and returns
// the ids whose value moved.
func (c *Config) Changed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.read()

	var ids []string
	for _, p := range Params {
		if current[p.ID] != c.snapshot[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	c.snapshot = current
	c.values = maps.Clone(current)
	return ids
}

// Watch reloads the config file on change and calls fn with the ids that
// changed. It is a no-op without a config file.
func (c *Config) Watch(fn func(changed []string)) {
	if c.File() == "" {
		return
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		if ids := c.Changed(); len(ids) > 0 {
			fn(ids)
		}
	})
	c.v.WatchConfig()
}
