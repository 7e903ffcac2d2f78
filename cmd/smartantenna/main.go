// Smartantenna drives an RFID smart antenna over its module UART.
//
// It resets and configures the RF module from a device profile, keeps
// inventory running and reports tag arrivals, departures and motion to the
// log and, optionally, to an MQTT broker.
//
// Usage:
//
//	smartantenna run --port /dev/ttyUSB0 [flags]
//	smartantenna check-profile profile.yaml
//
// See 'smartantenna run --help' for available options.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/profile"
	"github.com/kabili207/smartantenna-go/device/engine"
	"github.com/kabili207/smartantenna-go/transport"
	"github.com/kabili207/smartantenna-go/transport/mqtt"
	"github.com/kabili207/smartantenna-go/transport/serial"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smartantenna",
		Short: "RFID smart antenna controller",
		Long: `Controller for an RFID smart antenna.

Drives the RF module over its serial link, keeps tag inventory running and
reports tag presence. Link failures are recovered automatically by
reconnecting and resetting the module.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckProfileCmd())
	root.AddCommand(newVersionCmd())
	return root
}

type runOptions struct {
	port        string
	baud        int
	profilePath string
	selfTest    time.Duration
	logLevel    string
	logFormat   string
	mqttBroker  string
	mqttUser    string
	mqttPass    string
	mqttTLS     bool
	mqttPrefix  string
	deviceID    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the antenna until interrupted",
		Long: `Open the module's serial port, reset and configure the module from the
device profile and process traffic until SIGINT or SIGTERM.

With --mqtt-broker set, every event is published as JSON and raw command
frames are accepted from the broker.`,
		Example: `  # Run with the default single-antenna profile
  smartantenna run --port /dev/ttyUSB0

  # Run with a profile and publish events to a broker
  smartantenna run --port /dev/ttyUSB0 --profile dock.yaml \
    --mqtt-broker tcp://broker.local:1883 --device-id dock-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAntenna(cmd.Context(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.port, "port", "", "Serial port of the RF module (e.g. /dev/ttyUSB0)")
	f.IntVar(&opts.baud, "baud", serial.DefaultBaudRate, "Serial baud rate")
	f.StringVar(&opts.profilePath, "profile", "", "Path to the YAML device profile (default profile if empty)")
	f.DurationVar(&opts.selfTest, "self-test", 0, "Watchdog interval (default 10s)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker URL (disabled if empty)")
	f.StringVar(&opts.mqttUser, "mqtt-user", "", "MQTT username")
	f.StringVar(&opts.mqttPass, "mqtt-pass", "", "MQTT password")
	f.BoolVar(&opts.mqttTLS, "mqtt-tls", false, "Use TLS for the MQTT connection")
	f.StringVar(&opts.mqttPrefix, "mqtt-prefix", mqtt.DefaultTopicPrefix, "MQTT topic prefix")
	f.StringVar(&opts.deviceID, "device-id", "", "Device ID used in MQTT topics (default hostname)")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

func runAntenna(ctx context.Context, logOut io.Writer, opts *runOptions) error {
	logger, err := newLogger(logOut, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}

	prof, err := loadProfile(opts.profilePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := event.Multi{logSink(logger)}

	var gw *mqtt.Gateway
	if opts.mqttBroker != "" {
		deviceID := opts.deviceID
		if deviceID == "" {
			if deviceID, err = os.Hostname(); err != nil {
				return fmt.Errorf("determining device ID: %w", err)
			}
		}
		gw = mqtt.New(mqtt.Config{
			Broker:      opts.mqttBroker,
			Username:    opts.mqttUser,
			Password:    opts.mqttPass,
			UseTLS:      opts.mqttTLS,
			TopicPrefix: opts.mqttPrefix,
			DeviceID:    deviceID,
			Logger:      logger,
		})
		sinks = append(sinks, gw)
	}

	link := serial.New(serial.Config{
		Port:     opts.port,
		BaudRate: opts.baud,
		Logger:   logger,
	})
	eng := engine.New(link, engine.Config{
		Profile:          prof,
		SelfTestInterval: opts.selfTest,
		Sink:             sinks,
		Logger:           logger,
	})

	if gw != nil {
		gw.SetCommandHandler(eng.SubmitCommand)
		gw.SetStateHandler(gatewayStateLogger(logger))
		if err := gw.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT gateway: %w", err)
		}
		defer gw.Stop()
	}

	logger.Info("starting", "port", opts.port, "antennas", len(prof.Antennas), "auto_repeat", prof.AutoRepeat)
	err = eng.Run(ctx)

	c := eng.Counters()
	logger.Info("stopped",
		"frames", c.FramesRecv,
		"dropped", c.FramesDropped,
		"commands", c.CommandsSent,
		"resets", c.Resets,
		"tags", c.TrackedTags,
	)
	return err
}

// gatewayStateLogger reports broker connection changes. Loss of the broker
// does not affect the serial link.
func gatewayStateLogger(logger *slog.Logger) func(transport.Event) {
	log := logger.WithGroup("mqtt")
	return func(ev transport.Event) {
		if ev == transport.EventDisconnected {
			log.Warn("gateway offline, events are dropped until reconnect")
			return
		}
		log.Info("gateway state", "state", ev)
	}
}

func loadProfile(path string) (*profile.Config, error) {
	if path == "" {
		return profile.Default(), nil
	}
	return profile.Load(path)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// logSink writes tag and link events to the log.
func logSink(logger *slog.Logger) event.Sink {
	log := logger.WithGroup("event")
	return event.SinkFunc(func(ev event.Event) {
		attrs := []any{"kind", ev.Kind}
		if ev.Tag != nil {
			attrs = append(attrs, "epc", ev.Tag.EPC, "antenna", ev.Tag.Antenna, "rssi", ev.Tag.RSSI)
		}
		switch ev.Kind {
		case event.KindFirmwareError, event.KindTransportError, event.KindBufferOverflow:
			if ev.Error != "" {
				attrs = append(attrs, "error", ev.Error)
			}
			log.Warn("event", attrs...)
		case event.KindCommHealth:
			log.Info("event", append(attrs, "health", ev.Health)...)
		default:
			log.Info("event", attrs...)
		}
	})
}

func newCheckProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-profile <file>",
		Short: "Validate a device profile and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prof, err := profile.Load(args[0])
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), prof)
			return nil
		},
	}
}

func printProfile(w io.Writer, p *profile.Config) {
	s := p.Singulation
	fmt.Fprintf(w, "Antennas: %d\n", len(p.Antennas))
	for _, a := range p.Antennas {
		fmt.Fprintf(w, "  port %d: power %.1f dBm, dwell %d ms, cycles %d, physical port %d\n",
			a.Port, float64(a.PowerCdBm)/10, a.DwellMs, a.InventoryCycles, a.PhysicalPort)
	}
	fmt.Fprintf(w, "Singulation: %s (Q %d/%d/%d), session S%d, target %s, toggle %t\n",
		s.Algorithm, s.MinQ, s.StartQ, s.MaxQ, s.Session, s.Target, s.ToggleTarget)
	fmt.Fprintf(w, "Link profile: %d\n", p.LinkProfile)
	fmt.Fprintf(w, "Guard mode: %t\n", p.GuardMode)
	fmt.Fprintf(w, "Auto repeat: %t\n", p.AutoRepeat)
	fmt.Fprintf(w, "Motion threshold: %.1f dB\n", float64(p.MotionThreshold)/10)
	fmt.Fprintf(w, "Age threshold: %d s\n", p.AgeThreshold)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "smartantenna %s (commit: %s)\n", version, commit)
		},
	}
}
