package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/review-scraper/internal/progress"
)

// PrometheusSink exports run progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram
	targets       *prometheus.CounterVec
	fetchRequests *prometheus.CounterVec
	fetchRetries  *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	records       *prometheus.CounterVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_runs_running",
			Help: "Scrape runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_targets_total",
			Help: "Targets partitioned by outcome (enqueued, failed, skipped).",
		}, []string{"outcome"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_requests_total",
			Help: "Fetch completions partitioned by host and status class.",
		}, []string{"host", "status_class"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_retries_total",
			Help: "Retried fetch attempts partitioned by host and failure reason.",
		}, []string{"host", "reason"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_bytes_total",
			Help: "Content bytes retrieved per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by host.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"host"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Records partitioned by stage (extracted, added).",
		}, []string{"stage"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runDuration,
		s.targets,
		s.fetchRequests,
		s.fetchRetries,
		s.fetchBytes,
		s.fetchDuration,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.track(evt.RunID, true) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
		if s.track(evt.RunID, false) {
			s.runsRunning.Dec()
		}
	case progress.StageTargetEnqueued:
		s.targets.WithLabelValues("enqueued").Inc()
	case progress.StageTargetFailed:
		s.targets.WithLabelValues("failed").Inc()
	case progress.StagePageSkipped:
		s.targets.WithLabelValues("skipped").Inc()
	case progress.StageFetchRetry:
		s.fetchRetries.WithLabelValues(evt.Host, reasonLabel(evt.Reason)).Inc()
	case progress.StageFetchDone:
		s.fetchRequests.WithLabelValues(evt.Host, string(evt.StatusClass)).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(evt.Host).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(evt.Host).Observe(evt.Dur.Seconds())
		}
	case progress.StageRecordsExtracted:
		s.records.WithLabelValues("extracted").Add(float64(evt.Count))
	case progress.StageRecordAdded:
		s.records.WithLabelValues("added").Inc()
	}
}

// track records a run as started (true) or finished (false) and reports
// whether the running set changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		s.running[id] = struct{}{}
		return !ok
	}
	delete(s.running, id)
	return ok
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func reasonLabel(reason string) string {
	if reason == "" {
		return "other"
	}
	return reason
}
