// Package rabbitmq implements the small slice of the RabbitMQ management
// HTTP API that this exporter needs: listing every queue across all vhosts
// together with its message counters.
//
package rabbitmq
