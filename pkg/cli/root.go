package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoff-tech/go-messenger/pkg/broker"
	"github.com/zoff-tech/go-messenger/pkg/config"
	"github.com/zoff-tech/go-messenger/pkg/telemetry"
)

// ErrReceiverTask is returned when the receive goroutine dies without
// reporting an error of its own.
var ErrReceiverTask = errors.New("message receiver task failed")

// BrokerFactory opens a broker session for the resolved settings.
type BrokerFactory func(ctx context.Context, settings *config.Settings, log *slog.Logger) (broker.MessageBroker, error)

type options struct {
	configPath string
	queueName  string
	queueSet   bool
	logLevel   string
}

type app struct {
	opts      options
	newBroker BrokerFactory
	logOut    io.Writer
	log       *slog.Logger
}

// Execute runs the messenger with the process arguments.
func Execute(ctx context.Context) error {
	return run(ctx, os.Args[1:], broker.NewBroker, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, newBroker BrokerFactory, out, logOut io.Writer) error {
	a := &app{
		newBroker: newBroker,
		logOut:    logOut,
		log:       slog.New(slog.NewTextHandler(logOut, nil)),
	}

	rootCmd := a.rootCommand()
	rootCmd.SetOut(out)
	rootCmd.SetErr(logOut)
	rootCmd.SetArgs(normalizeArgs(args))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		a.log.Error("Messenger failed", "err", err)
		return err
	}
	return nil
}

func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "messenger",
		Short:             "Asynchronous RabbitMQ Messenger",
		Long: `Sends a single message to, or listens for messages on, a queue of a message broker.

A receiver runs until the broker ends the subscription. Stopping it with
SIGINT or SIGTERM closes the session and exits with status 0.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.opts.queueSet = cmd.Flags().Changed("queuename")
			return a.setupLogger(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without a mode there is nothing to connect for
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.opts.queueName, "queuename", "q", "",
		"Specifies a custom queue name for sending or receiving messages. This overrides the default queue name set in the config file. An empty name lets RabbitMQ name the queue.")
	flags.StringVarP(&a.opts.configPath, "config", "c", config.DefaultPath, "Path of the TOML settings file")
	flags.StringVar(&a.opts.logLevel, "log-level", "debug", "Minimum log level (debug, info, warn, error)")

	rootCmd.AddCommand(a.sendCommand(), a.receiveCommand())
	return rootCmd
}

func (a *app) setupLogger(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.opts.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.opts.logLevel, err)
	}
	a.log = slog.New(slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: level}))
	return nil
}

// openSession loads the settings, applies the queue override and connects to
// the broker. The returned cleanup closes everything openSession opened.
func (a *app) openSession(ctx context.Context) (config.Settings, broker.MessageBroker, func(), error) {
	loaded, err := config.LoadFromFile(a.opts.configPath)
	if err != nil {
		return config.Settings{}, nil, nil, err
	}
	settings := *loaded
	if a.opts.queueSet {
		settings = loaded.WithQueueOverride(a.opts.queueName)
	}

	shutdownTelemetry := func() {}
	if settings.Observability.TracingEnabled() {
		shutdownTelemetry, err = telemetry.Init(settings.Observability, a.log)
		if err != nil {
			return config.Settings{}, nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	b, err := a.newBroker(ctx, &settings, a.log)
	if err != nil {
		shutdownTelemetry()
		return config.Settings{}, nil, nil, err
	}
	a.log.Debug("Broker session established", "broker", settings.Broker.Type, "queue", settings.QueueName)

	cleanup := func() {
		if err := b.Close(); err != nil {
			a.log.Warn("Failed to close broker session", "err", err)
		}
		shutdownTelemetry()
	}
	return settings, b, cleanup, nil
}
