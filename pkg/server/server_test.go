package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/paperpulse/internal/store"
	"github.com/elonfeng/paperpulse/pkg/collector"
	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/source"
)

const testDate = "2026-03-10"

type fakeCollector struct {
	dates []string
}

func (f *fakeCollector) Run(_ context.Context, date string) (*collector.Summary, error) {
	f.dates = append(f.dates, date)
	return &collector.Summary{Date: date, Papers: 2}, nil
}

func newTestServer(t *testing.T) (*Server, *store.SQLStore, *fakeCollector) {
	t.Helper()
	s, err := store.New(store.DriverSQLite, filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	pub := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPapers(ctx, []source.Paper{
		{ID: "arxiv:1", Source: source.SourceArXiv, ExternalID: "1", Title: "One", Categories: []string{"cs.LG"}, PublishedAt: &pub, CollectedAt: pub},
		{ID: "arxiv:hep-th/9901001", Source: source.SourceArXiv, ExternalID: "hep-th/9901001", Title: "Old", Categories: []string{"hep-th"}, CollectedAt: pub},
	}))
	require.NoError(t, s.UpsertRawMetric(ctx, testDate, engagement.RawMetric{PaperID: "arxiv:1", CitationCount: 4}))
	require.NoError(t, s.UpsertRawMetric(ctx, testDate, engagement.RawMetric{PaperID: "arxiv:hep-th/9901001", CitationCount: 2}))

	c := &fakeCollector{}
	srv := New(s, engagement.NewEngine(s, nil), c, 0)
	srv.now = func() time.Time { return time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC) }
	return srv, s, c
}

func do(t *testing.T, srv *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := do(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPapers(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/papers?category=cs.LG")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/papers?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaperByID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/papers/arxiv:hep-th/9901001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Old", body["title"])

	rec, body = do(t, srv, http.MethodGet, "/api/v1/papers/arxiv:missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "paper not found", body["error"])
}

func TestPaperMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := do(t, srv, http.MethodGet, "/api/v1/papers/arxiv:1/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "arxiv:1", body["paper_id"])
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/papers/arxiv:none/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRescoreAndRankings(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := do(t, srv, http.MethodPost, "/api/v1/snapshots/"+testDate+"/rescore")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "primary", body["state"])
	assert.Equal(t, float64(2), body["written"])

	rec, body = do(t, srv, http.MethodGet, "/api/v1/rankings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testDate, body["date"])
	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "arxiv:1", first["paper_id"])
	assert.Equal(t, float64(1), first["engagement_score"])
	assert.Equal(t, float64(1), first["rank"])

	rec, body = do(t, srv, http.MethodGet, "/api/v1/rankings?date="+testDate+"&category=hep-th&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestRankingsEmptyStore(t *testing.T) {
	s, err := store.New(store.DriverSQLite, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer s.Close()

	srv := New(s, engagement.NewEngine(s, nil), nil, 0)
	rec, body := do(t, srv, http.MethodGet, "/api/v1/rankings")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/collect")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvalidDates(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := do(t, srv, http.MethodPost, "/api/v1/snapshots/2026-13-40/rescore")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid snapshot date")

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/rankings?date=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshots(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := do(t, srv, http.MethodGet, "/api/v1/snapshots")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{testDate}, body["data"])
}

func TestCollectUsesTodayInUTC(t *testing.T) {
	srv, _, c := newTestServer(t)

	rec, body := do(t, srv, http.MethodPost, "/api/v1/collect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-11", body["date"])
	assert.Equal(t, []string{"2026-03-11"}, c.dates)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := do(t, srv, http.MethodGet, "/api/v1/collect")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", body["error"])
}
