// Package cpuwatch restarts a systemd unit whenever host CPU usage goes
// above a threshold.
//
// A Watchdog is a scheduler.Refresher: each Refresh takes one sample and
// acts on it, leaving the cadence up to the loop driving it.
//
package cpuwatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/go-logr/logr"
	"github.com/shirou/gopsutil/v4/cpu"
)

// SampleFunc reports the CPU usage, in percent, averaged over `window`.
//
type SampleFunc func(ctx context.Context, window time.Duration) (float64, error)

// RestartFunc restarts the named service.
//
type RestartFunc func(ctx context.Context, service string) error

type Watchdog struct {
	service   string
	threshold float64
	window    time.Duration

	sample  SampleFunc
	restart RestartFunc

	log logr.Logger
}

type Option func(w *Watchdog)

func WithSampler(v SampleFunc) func(w *Watchdog) {
	return func(w *Watchdog) {
		w.sample = v
	}
}

func WithRestarter(v RestartFunc) func(w *Watchdog) {
	return func(w *Watchdog) {
		w.restart = v
	}
}

func WithSampleWindow(v time.Duration) func(w *Watchdog) {
	return func(w *Watchdog) {
		w.window = v
	}
}

func WithLogger(v logr.Logger) func(w *Watchdog) {
	return func(w *Watchdog) {
		w.log = v
	}
}

// New creates a watchdog restarting `service` once CPU usage is strictly
// above `threshold` percent.
//
func New(service string, threshold float64, opts ...Option) (*Watchdog, error) {
	if service == "" {
		return nil, fmt.Errorf("service must not be empty")
	}

	if threshold <= 0 || threshold > 100 {
		return nil, fmt.Errorf("threshold must be within (0, 100], got %g", threshold)
	}

	w := &Watchdog{
		service:   service,
		threshold: threshold,
		window:    time.Second,
		sample:    SampleCPU,
		restart:   SystemctlRestart,
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Refresh samples CPU usage once and restarts the service if it's above
// the threshold. Failures are only logged.
//
func (w *Watchdog) Refresh(ctx context.Context) {
	usage, err := w.sample(ctx, w.window)
	if err != nil {
		w.log.Error(err, "sample cpu")
		return
	}

	log := w.log.WithValues("usage", usage, "threshold", w.threshold)
	if usage <= w.threshold {
		log.V(1).Info("cpu usage within threshold")
		return
	}

	log.Info("cpu usage above threshold, restarting", "service", w.service)

	if err := w.restart(ctx, w.service); err != nil {
		log.Error(err, "restart failed", "service", w.service)
		return
	}

	log.Info("restarted", "service", w.service)
}

// SampleCPU measures overall CPU usage across all cores over `window`.
//
func SampleCPU(ctx context.Context, window time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}

	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}

	return percents[0], nil
}

// SystemctlRestart runs `systemctl restart <service>`.
//
func SystemctlRestart(ctx context.Context, service string) error {
	var output bytes.Buffer

	cmd := exec.CommandContext(ctx, "systemctl", "restart", service)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl restart '%s': %w: %s",
			service, err, bytes.TrimSpace(output.Bytes()))
	}

	return nil
}
