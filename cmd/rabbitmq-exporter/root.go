package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cirocosta/rabbitmq-exporter/pkg/collector"
	"github.com/cirocosta/rabbitmq-exporter/pkg/config"
	"github.com/cirocosta/rabbitmq-exporter/pkg/exporter"
	"github.com/cirocosta/rabbitmq-exporter/pkg/rabbitmq"
	"github.com/cirocosta/rabbitmq-exporter/pkg/scheduler"
)

type command struct{}

func (c *command) Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rabbitmq-exporter",
		Short: "Prometheus exporter for per-queue rabbitmq metrics",
		Long: "Polls the RabbitMQ management API on a fixed interval and " +
			"exposes per-queue message counts as prometheus gauges.\n\n" +
			"Every flag can also be set through its upper-cased " +
			"environment variable (e.g., --rabbitmq-host: RABBITMQ_HOST).",
		SilenceUsage: true,
		RunE:         c.RunE,
	}

	config.AddFlags(cmd.Flags())

	return cmd
}

func (c *command) RunE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return startupError("config", err)
	}

	log, flush, err := newLogger(cfg.LogLevel)
	if err != nil {
		return startupError("logger", err)
	}
	defer flush()

	registry := prometheus.NewRegistry()

	metrics, err := collector.NewMetrics(registry)
	if err != nil {
		return startupError("metrics", err)
	}

	client, err := rabbitmq.NewClient(cfg.BaseURL(),
		rabbitmq.WithCredentials(cfg.RabbitMQUser, cfg.RabbitMQPassword),
		rabbitmq.WithTimeout(cfg.Timeout()),
		rabbitmq.WithUserAgent(userAgent()),
		rabbitmq.WithLogger(log.WithName("rabbitmq")),
	)
	if err != nil {
		return startupError("rabbitmq client", err)
	}

	queueCollector := collector.New(client, metrics, cfg.RabbitMQHost,
		collector.WithTimeout(cfg.Timeout()),
		collector.WithLogger(log.WithName("collector")),
	)

	prometheusExporter, err := exporter.New(registry,
		exporter.WithBindAddress(cfg.BindAddress()),
		exporter.WithTelemetryPath(cfg.TelemetryPath),
		exporter.WithLogger(log.WithName("exporter")),
	)
	if err != nil {
		return startupError("new exporter", err)
	}
	defer prometheusExporter.Close()

	// bind before the first cycle so early scrapes see an empty registry
	// rather than a refused connection.
	if err := prometheusExporter.Listen(); err != nil {
		return startupError("exporter listen", err)
	}

	loop, err := scheduler.New(queueCollector, cfg.Interval(),
		scheduler.WithLogger(log.WithName("scheduler")),
	)
	if err != nil {
		return startupError("scheduler", err)
	}

	log.Info("starting",
		"rabbitmq", cfg.BaseURL(),
		"interval", cfg.Interval(),
		"timeout", cfg.Timeout(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx,
		prometheusExporter.Serve,
		loop.Run,
	)
}

// run executes every function concurrently until one of them fails or the
// context is cancelled. Cancellation is not an error.
//
func run(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, fn := range fns {
		fn := fn

		g.Go(func() error {
			return fn(gctx)
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	return nil
}
