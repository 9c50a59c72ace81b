// Package progress provides the run events that workers emit while scraping,
// and a non-blocking hub that batches them on a background goroutine and fans
// them out to pluggable sinks such as logs, Prometheus metrics or a terminal
// progress bar. Progress is a side channel: dropping an event never affects
// the dataset.
package progress
