// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, in-memory counters and a terminal progress bar.
package sinks
