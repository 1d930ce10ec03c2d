package collector

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cirocosta/rabbitmq-exporter/pkg/rabbitmq"
)

const (
	namespace = "rabbitmq"
	subsystem = "individual_queue"
)

// labels identifying a single queue time series: the broker we polled plus
// the queue's (vhost, name) pair.
//
var labels = []string{"host", "vhost", "name"}

// Metrics holds the gauge vectors that queue counters are published
// through.
//
// Series are never deleted: a queue that disappears from the broker keeps
// being reported at its last observed value.
//
type Metrics struct {
	messages               *prometheus.GaugeVec
	messagesReady          *prometheus.GaugeVec
	messagesUnacknowledged *prometheus.GaugeVec
}

// NewMetrics creates the queue gauges and registers them with `reg`.
//
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages",
			Help:      "Total number of messages in queue",
		}, labels),
		messagesReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_ready",
			Help:      "Number of messages ready in queue",
		}, labels),
		messagesUnacknowledged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_unacknowledged",
			Help:      "Number of unacknowledged messages in queue",
		}, labels),
	}

	for _, c := range []prometheus.Collector{
		m.messages,
		m.messagesReady,
		m.messagesUnacknowledged,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}

	return m, nil
}

// Observe overwrites the three gauges of queue `q` as seen on `host`.
//
func (m *Metrics) Observe(host string, q rabbitmq.Queue) {
	lvs := []string{host, q.VHost, q.Name}

	m.messages.WithLabelValues(lvs...).Set(q.Messages)
	m.messagesReady.WithLabelValues(lvs...).Set(q.MessagesReady)
	m.messagesUnacknowledged.WithLabelValues(lvs...).Set(q.MessagesUnacknowledged)
}
