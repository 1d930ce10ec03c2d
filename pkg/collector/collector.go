package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/cirocosta/rabbitmq-exporter/pkg/rabbitmq"
)

// QueueLister is what the collector needs from a RabbitMQ client.
//
type QueueLister interface {
	ListQueues(ctx context.Context) ([]rabbitmq.Queue, error)
}

var _ QueueLister = (*rabbitmq.Client)(nil)

// Collector performs "observe everything, publish everything" cycles
// against a single broker.
//
type Collector struct {
	lister  QueueLister
	metrics *Metrics

	// host is the static identity of the polled broker, used as the
	// `host` label of every series.
	//
	host string

	// timeout bounds each fetch. Zero leaves it up to the lister.
	//
	timeout time.Duration

	log logr.Logger
}

// Option is a type used by functional arguments to mutate the collector to
// override default behavior.
//
type Option func(c *Collector)

func WithLogger(v logr.Logger) func(c *Collector) {
	return func(c *Collector) {
		c.log = v
	}
}

// WithTimeout bounds every fetch performed by Refresh. It should be kept
// shorter than the refresh interval so that a hung broker can't make cycles
// pile up.
//
func WithTimeout(v time.Duration) func(c *Collector) {
	return func(c *Collector) {
		c.timeout = v
	}
}

// New instantiates a collector that publishes the queues listed by `lister`
// into `metrics`, labelled with `host`.
//
func New(lister QueueLister, metrics *Metrics, host string, opts ...Option) *Collector {
	c := &Collector{
		lister:  lister,
		metrics: metrics,
		host:    host,
		log:     logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Refresh runs a single collection cycle.
//
// Failures are logged and swallowed: the gauges keep whatever values the
// last successful cycle gave them, and the caller is free to try again on
// its next tick.
//
func (c *Collector) Refresh(ctx context.Context) {
	n, err := c.collect(ctx)
	if err != nil {
		c.log.Error(err, "refresh failed", "host", c.host)
		return
	}

	c.log.Info("collected", "host", c.host, "queues", n)
}

// collect fetches and decodes the full queue listing before touching any
// gauge, so a failed cycle never leaves partial updates behind.
//
func (c *Collector) collect(ctx context.Context) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	queues, err := c.lister.ListQueues(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queues: %w", err)
	}

	for _, q := range queues {
		c.metrics.Observe(c.host, q)
	}

	return len(queues), nil
}
