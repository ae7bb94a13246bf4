package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"marketnews/internal/domain"
	"marketnews/internal/worker"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGetter struct {
	items     []domain.NewsItem
	err       error
	lastLimit int
}

func (s *stubGetter) GetNews(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.items) {
		return s.items[:limit], nil
	}
	return s.items, nil
}

type stubReporter struct {
	report *worker.Report
}

func (s stubReporter) LastReport() *worker.Report { return s.report }

func newTestRouter(getter newsGetter, reporter passReporter) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(log, NewHandler(log, getter, reporter))
}

func TestGetNews(t *testing.T) {
	getter := &stubGetter{items: []domain.NewsItem{
		{ID: 2, Headline: "Second", URL: "https://example.com/2", PublishedAt: "2025-10-14T08:00:00Z"},
		{ID: 1, Headline: "First", URL: "https://example.com/1", PublishedAt: "2025-10-14T07:00:00Z"},
	}}
	router := newTestRouter(getter, nil)

	tests := []struct {
		name      string
		target    string
		method    string
		wantCode  int
		wantLimit int
		wantLen   int
	}{
		{"default limit", "/api/news", http.MethodGet, http.StatusOK, 10, 2},
		{"explicit limit", "/api/news?limit=1", http.MethodGet, http.StatusOK, 1, 1},
		{"limit is capped", "/api/news?limit=5000", http.MethodGet, http.StatusOK, 100, 2},
		{"invalid limit", "/api/news?limit=abc", http.MethodGet, http.StatusBadRequest, 0, 0},
		{"zero limit", "/api/news?limit=0", http.MethodGet, http.StatusBadRequest, 0, 0},
		{"wrong method", "/api/news", http.MethodPost, http.StatusMethodNotAllowed, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter.lastLimit = 0
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantLimit, getter.lastLimit)
			if tt.wantCode == http.StatusOK {
				var items []domain.NewsItem
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
				assert.Len(t, items, tt.wantLen)
			}
		})
	}
}

func TestGetNews_EmptyStoreReturnsArray(t *testing.T) {
	rec := httptest.NewRecorder()

	newTestRouter(&stubGetter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetNews_StoreError(t *testing.T) {
	getter := &stubGetter{err: &domain.StoreError{Op: "latest", Err: errors.New("timeout")}}
	rec := httptest.NewRecorder()

	newTestRouter(getter, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubGetter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	finished := time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)
	summary := domain.NewSummary()
	summary.Count(domain.KindRSS, true)
	reporter := stubReporter{report: &worker.Report{
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
		Summary:    summary,
		Error:      "store insert: boom",
	}}
	rec = httptest.NewRecorder()
	newTestRouter(&stubGetter{}, reporter).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	require.NotNil(t, body.LastPass)
	assert.Equal(t, 1, body.LastPass.Summary.Inserted)
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()

	newTestRouter(&stubGetter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/news", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
