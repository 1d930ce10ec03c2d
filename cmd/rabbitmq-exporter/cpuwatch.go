package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cirocosta/rabbitmq-exporter/pkg/config"
	"github.com/cirocosta/rabbitmq-exporter/pkg/cpuwatch"
	"github.com/cirocosta/rabbitmq-exporter/pkg/scheduler"
)

type cpuwatchCommand struct{}

func (c *cpuwatchCommand) Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpuwatch",
		Short: "restart a systemd unit whenever cpu usage is too high",
		Long: "Samples host cpu usage on a fixed interval and runs " +
			"`systemctl restart` on the configured unit when it goes " +
			"above the threshold.\n\n" +
			"Flags can also be set through CPUWATCH_* environment " +
			"variables (e.g., --service: CPUWATCH_SERVICE).",
		SilenceUsage: true,
		RunE:         c.RunE,
	}

	config.AddWatchdogFlags(cmd.Flags())

	return cmd
}

func (c *cpuwatchCommand) RunE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWatchdog(cmd.Flags())
	if err != nil {
		return startupError("config", err)
	}

	log, flush, err := newLogger(cfg.LogLevel)
	if err != nil {
		return startupError("logger", err)
	}
	defer flush()

	watchdog, err := cpuwatch.New(cfg.Service, cfg.Threshold,
		cpuwatch.WithSampleWindow(cfg.Window()),
		cpuwatch.WithLogger(log.WithName("cpuwatch")),
	)
	if err != nil {
		return startupError("watchdog", err)
	}

	loop, err := scheduler.New(watchdog, cfg.CheckInterval(),
		scheduler.WithLogger(log.WithName("scheduler")),
	)
	if err != nil {
		return startupError("scheduler", err)
	}

	log.Info("watching",
		"service", cfg.Service,
		"threshold", cfg.Threshold,
		"interval", cfg.CheckInterval(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, loop.Run)
}
