package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"marketnews/internal/domain"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	supabaseRESTPath = "/rest/v1/"
	errorBodyLimit   = 512
	// codeNoUniqueConstraint - ответ PostgreSQL на ON CONFLICT по столбцу без уникального ограничения.
	codeNoUniqueConstraint = "42P10"
)

// APIError - ответ PostgREST с кодом вне 2xx.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Status, e.Body)
}

func (e *APIError) noUniqueConstraint() bool {
	if e.Status != http.StatusBadRequest {
		return false
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil && payload.Code != "" {
		return payload.Code == codeNoUniqueConstraint
	}
	return strings.Contains(e.Body, codeNoUniqueConstraint)
}

// SupabaseNewsDB работает с таблицей market_news через PostgREST API Supabase.
type SupabaseNewsDB struct {
	endpoint string
	key      string
	client   *http.Client
	log      *slog.Logger
	// checkOnly включается, когда таблица не поддерживает on_conflict=url.
	checkOnly atomic.Bool
}

// NewSupabaseNewsDB создает клиент таблицы по адресу проекта и ключу API.
// timeout ограничивает каждый запрос; 0 означает 10 секунд.
func NewSupabaseNewsDB(projectURL, key string, timeout time.Duration, log *slog.Logger) *SupabaseNewsDB {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log.Info("Initializing Supabase news storage", slog.String("component", "storage"))
	return &SupabaseNewsDB{
		endpoint: strings.TrimRight(projectURL, "/") + supabaseRESTPath + TableName,
		key:      key,
		client:   &http.Client{Timeout: timeout},
		log:      log.With(slog.String("component", "storage")),
	}
}

func (s *SupabaseNewsDB) Close() {}

func (s *SupabaseNewsDB) Exists(ctx context.Context, rawURL string) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("url", "eq."+rawURL)
	q.Set("limit", "1")
	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, q, nil, "", &rows); err != nil {
		s.log.Error("Existence check failed", slog.String("url", rawURL), slog.Any("error", err))
		return false, &domain.StoreError{Op: "exists", URL: rawURL, Err: err}
	}
	return len(rows) > 0, nil
}

func (s *SupabaseNewsDB) Insert(ctx context.Context, item domain.NewsItem) error {
	item.ID = 0
	if err := s.do(ctx, http.MethodPost, nil, item, "return=minimal", nil); err != nil {
		s.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return nil
}

// InsertIfAbsent вставляет строку с on_conflict=url. Если в таблице нет уникального
// ограничения на url, клиент переходит на Exists и Insert до конца своей жизни.
func (s *SupabaseNewsDB) InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error) {
	item.ID = 0
	if !s.checkOnly.Load() {
		inserted, err := s.upsert(ctx, item)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.noUniqueConstraint() {
			return inserted, err
		}
		if s.checkOnly.CompareAndSwap(false, true) {
			s.log.Warn("Table has no unique constraint on url, falling back to exists check before insert",
				slog.String("table", TableName))
		}
	}
	exists, err := s.Exists(ctx, item.URL)
	if err != nil || exists {
		return false, err
	}
	if err := s.Insert(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SupabaseNewsDB) upsert(ctx context.Context, item domain.NewsItem) (bool, error) {
	q := url.Values{}
	q.Set("on_conflict", "url")
	var created []domain.NewsItem
	err := s.do(ctx, http.MethodPost, q, item, "resolution=ignore-duplicates,return=representation", &created)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.noUniqueConstraint() {
			return false, err
		}
		s.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return false, &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return len(created) > 0, nil
}

func (s *SupabaseNewsDB) Latest(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "published_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	var items []domain.NewsItem
	if err := s.do(ctx, http.MethodGet, q, nil, "", &items); err != nil {
		return nil, &domain.StoreError{Op: "latest", Err: err}
	}
	return items, nil
}

func (s *SupabaseNewsDB) do(ctx context.Context, method string, query url.Values, body any, prefer string, out any) error {
	target := s.endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
