// Package scheduler drives a Refresher on a fixed interval until told to
// stop.
//
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
)

// Refresher is anything that performs one self-contained cycle of work.
// Implementations are expected to deal with their own failures: nothing is
// reported back to the loop.
//
type Refresher interface {
	Refresh(ctx context.Context)
}

// Loop calls a Refresher, waits for the interval to elapse, and repeats.
//
// The wait starts only once a refresh returns, so slow cycles push the
// following ones back rather than overlapping or being skipped.
//
type Loop struct {
	refresher Refresher
	interval  time.Duration

	clock clockwork.Clock
	log   logr.Logger
}

type Option func(l *Loop)

// WithClock overrides the real clock, letting tests step through cycles.
//
func WithClock(v clockwork.Clock) func(l *Loop) {
	return func(l *Loop) {
		l.clock = v
	}
}

func WithLogger(v logr.Logger) func(l *Loop) {
	return func(l *Loop) {
		l.log = v
	}
}

func New(r Refresher, interval time.Duration, opts ...Option) (*Loop, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	l := &Loop{
		refresher: r,
		interval:  interval,
		clock:     clockwork.NewRealClock(),
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Run blocks, refreshing right away and then once per interval, until `ctx`
// is cancelled.
//
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("starting", "interval", l.interval)

	for cycle := uint64(1); ; cycle++ {
		start := l.clock.Now()
		l.refresher.Refresh(ctx)
		took := l.clock.Since(start)

		log := l.log.V(1).WithValues("cycle", cycle, "took", took)
		if took > l.interval {
			log.Info("cycle overran interval", "interval", l.interval)
		} else {
			log.Info("cycle done")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ctx err: %w", ctx.Err())
		case <-l.clock.After(l.interval):
		}
	}
}
