// Package api hosts the optional status server that runs alongside a scrape.
// Routes:
//   - GET /healthz liveness check.
//   - GET /metrics Prometheus exposition of the run and HTTP collectors.
//   - GET /progress JSON snapshot of the run counters.
package api
