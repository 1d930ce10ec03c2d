// Package collector provides the core functionality of this exporter.
//
// Unlike a scrape-time prometheus.Collector, the Collector here is driven
// on a fixed interval (see `pkg/scheduler`): each Refresh lists the queues
// from the RabbitMQ management API and pushes their counters into gauges
// living in an injected registry. Scrapes only ever read whatever the last
// successful refresh left there.
//
package collector
