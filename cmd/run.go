// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/penumbra/internal/bridge"
	"github.com/Thermoquad/penumbra/internal/daemon"
	"github.com/Thermoquad/penumbra/internal/hal"
	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/Thermoquad/penumbra/pkg/light"
	"github.com/Thermoquad/penumbra/pkg/param"
	"github.com/Thermoquad/penumbra/pkg/switches"
	"github.com/Thermoquad/penumbra/pkg/thermal"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var noGPIO bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dimmer",
	Long: `Run the dimmer daemon.

Opens the co-processor link, applies the dimming parameters, reads the wall
switches, watches the temperature and bridges the light to the MQTT broker.
Runs until interrupted. Parameter changes in the config file are applied
without a restart, except for the link, GPIO and broker settings.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&noGPIO, "no-gpio", false, "Run without switches, status LED and reset lines")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log := appLog.Logger
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname := resolveHostname(ctx)
	log.Info("starting", zap.String("hostname", hostname), zap.String("version", rootCmd.Version))

	// Co-processor link
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("co-processor link", zap.String("connection", connInfo))

	stats := dimlink.NewStatistics()
	profile := dimlink.ProfileByName(cfg.Value("profile"))
	transport := dimlink.NewTransport(conn,
		dimlink.WithLogger(log.Named("link")),
		dimlink.WithStatistics(stats))
	client := dimlink.NewClient(transport, profile, log.Named("link"))

	ctrl := light.NewController(light.LimitsFor(profile.Name), client, log.Named("light"))
	client.SetObserver(ctrl)

	// GPIO
	var (
		inputs    []switches.Input
		indicator *switches.Indicator
		resets    *hal.ResetLines
	)
	if !noGPIO {
		chip, err := hal.Open(cfg.Value("gpioChip"), log.Named("gpio"))
		if err != nil {
			return err
		}
		defer chip.Close()

		if inputs, indicator, resets, err = openGPIO(chip); err != nil {
			return err
		}
	}

	if err := startCoprocessor(ctx, client, resets); err != nil {
		log.Warn("co-processor not answering", zap.Error(err))
	}
	if err := applyDimming(ctx, client); err != nil {
		log.Error("dimming parameters not applied", zap.Error(err))
	}

	// Switches
	var deb *switches.Debouncer
	if len(inputs) > 0 {
		deb = switches.NewDebouncer(inputs, ctrl, switches.DefaultConfig(), log.Named("switches"))
		deb.SetTopology(switches.ParseTopology(cfg.Value("switchType"), cfg.Value("defaultReleaseState")))
		if indicator != nil {
			deb.SetIndicator(indicator)
		}
	}

	// Broker
	bus := bridge.New(cfg, hostname, log.Named("mqtt"))
	defer bus.Close()
	if err := bus.Connect(ctx, bridge.Options{
		Server:   cfg.Value("mqttServer"),
		Port:     cfg.Value("mqttPort"),
		User:     cfg.Value("mqttUser"),
		Password: cfg.Value("mqttPassword"),
		Hostname: hostname,
	}); err != nil {
		return err
	}

	// Temperature
	var guard *thermal.Guard
	if sensor := openSensor(); sensor != nil {
		guard = thermal.NewGuard(sensor, ctrl, hostname, log.Named("thermal"))
		guard.SetPublisher(bus)
	}

	poll := daemon.DefaultPollPeriod
	if ms, ok := param.ParseUint(cfg.Value("statePoll"), 6); ok && ms > 0 {
		poll = time.Duration(ms) * time.Millisecond
	}

	d := daemon.New(daemon.Options{
		Params:     cfg,
		Light:      ctrl,
		Switches:   deb,
		Guard:      guard,
		Indicator:  indicator,
		Link:       client,
		Bus:        bus,
		Stats:      stats,
		Hostname:   hostname,
		Logger:     log.Named("daemon"),
		PollPeriod: poll,
		OnLogLevel: func(level string) {
			if err := appLog.SetLevel(level); err != nil {
				log.Warn("invalid log level", zap.String("level", level))
			}
		},
	})
	cfg.Watch(d.Reload)

	err = d.Run(ctx)

	// Do not leave the light mid-blink.
	shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if stopErr := ctrl.StopBlink(shutdown); stopErr != nil {
		log.Warn("stop blink on exit", zap.Error(stopErr))
	}
	log.Info("stopped", zap.Stringer("link", stats.Snapshot()))
	return err
}

// resolveHostname prefers the configured hostname, then the host's.
func resolveHostname(ctx context.Context) string {
	if h := cfg.Value("hostname"); h != "" {
		return h
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "penumbra"
}

// openGPIO requests the switch inputs, the status LED and the reset lines.
// Unset offsets are skipped.
func openGPIO(chip *hal.Chip) ([]switches.Input, *switches.Indicator, *hal.ResetLines, error) {
	offsets, err := hal.ParseOffsets(cfg.Value("switchLines"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("switchLines: %w", err)
	}
	inputs, err := chip.Inputs(offsets)
	if err != nil {
		return nil, nil, nil, err
	}

	var indicator *switches.Indicator
	led, err := hal.ParseOffset(cfg.Value("ledLine"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ledLine: %w", err)
	}
	if led >= 0 {
		activeLow := cfg.Value("ledActiveLow") == "1"
		initial := 0
		if activeLow {
			initial = 1
		}
		out, err := chip.Output(led, initial)
		if err != nil {
			return nil, nil, nil, err
		}
		indicator = switches.NewIndicator(out, activeLow)
	}

	nrst, err := hal.ParseOffset(cfg.Value("resetLine"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resetLine: %w", err)
	}
	boot0, err := hal.ParseOffset(cfg.Value("boot0Line"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("boot0Line: %w", err)
	}
	var resets *hal.ResetLines
	if nrst >= 0 {
		if resets, err = chip.ResetLines(nrst, boot0); err != nil {
			return nil, nil, nil, err
		}
	}
	return inputs, indicator, resets, nil
}

// startCoprocessor resets the co-processor when its reset line is wired,
// otherwise it only checks the firmware version.
func startCoprocessor(ctx context.Context, client *dimlink.Client, resets *hal.ResetLines) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if resets != nil {
		_, err := client.Reset(ctx, resets)
		return err
	}
	_, err := client.GetVersion(ctx)
	return err
}

// applyDimming pushes the configured phase cut edge and debounce. Type 0
// keeps whatever the co-processor already uses.
func applyDimming(ctx context.Context, client *dimlink.Client) error {
	params := dimlink.DefaultDimmingParameters()
	switch cfg.Value("dimmingType") {
	case "", "0":
		return nil
	case "1":
		params.Edge = dimlink.EdgeLeading
	case "2":
		params.Edge = dimlink.EdgeTrailing
	default:
		return fmt.Errorf("unknown dimmingType %q", cfg.Value("dimmingType"))
	}
	if v, ok := param.ParseUint(cfg.Value("flickerDebounce"), 3); ok {
		params.Debounce = dimlink.ClampFlickerDebounce(v)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := client.SetDimmingParameters(ctx, params)
	var incomplete *dimlink.TransactionIncompleteError
	if errors.As(err, &incomplete) {
		appLog.Warn("dimming sequence incomplete",
			zap.Int("step", incomplete.Step+1),
			zap.Stringer("cmd", incomplete.Command))
	}
	return err
}

// openSensor selects the temperature source, nil for none.
func openSensor() thermal.Sensor {
	switch strings.ToLower(cfg.Value("sensorSource")) {
	case "adc":
		return thermal.NewADCSensor(cfg.Value("adcPath"))
	case "host":
		return thermal.NewHostSensor(cfg.Value("sensorMatch"))
	default:
		appLog.Info("temperature guard disabled")
		return nil
	}
}
