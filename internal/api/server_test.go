package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/progress"
	"github.com/JakeFAU/review-scraper/internal/progress/sinks"
)

func newTestServer(t *testing.T) (*Server, *sinks.CounterSink, *prometheus.Registry) {
	t.Helper()
	counters := sinks.NewCounterSink()
	reg := prometheus.NewRegistry()
	srv, err := NewServer(counters, reg, zap.NewNop())
	require.NoError(t, err)
	return srv, counters, reg
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProgressServesCounters(t *testing.T) {
	t.Parallel()

	srv, counters, _ := newTestServer(t)
	runID := uuid.New()
	now := time.Now()
	require.NoError(t, counters.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageTargetEnqueued, Host: "shop.test"},
		{RunID: runID, TS: now, Stage: progress.StageRecordAdded, Host: "shop.test"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	var got sinks.Counts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, runID.String(), got.RunID)
	require.True(t, got.Running)
	require.EqualValues(t, 1, got.TargetsEnqueued)
	require.EqualValues(t, 1, got.RecordsAdded)
}

func TestMetricsExposesRegistryAndRequestCounts(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "scraper_test_total", Help: "test"})
	reg.MustRegister(extra)
	extra.Add(2)

	for range 2 {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper_test_total 2")
	require.Contains(t, rec.Body.String(), `scraper_http_requests_total{code="200",method="GET",route="/healthz"} 2`)
}

func TestUnknownRouteIs404(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	n, err := testutil.GatherAndCount(reg, "scraper_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNewServerRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	counters := sinks.NewCounterSink()
	reg := prometheus.NewRegistry()
	_, err := NewServer(counters, reg, nil)
	require.NoError(t, err)
	_, err = NewServer(counters, reg, nil)
	require.Error(t, err)

	_, err = NewServer(nil, reg, nil)
	require.Error(t, err)
}

func TestServeShutsDownWithContext(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
