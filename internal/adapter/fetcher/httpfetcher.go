package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "marketnews-collector/1.0"
	// errorBodyLimit ограничивает фрагмент тела ответа, попадающий в ошибку.
	errorBodyLimit = 512
)

// StatusError возвращается, когда сервер ответил кодом, отличным от 200.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d for url %s", e.Code, e.URL)
	}
	return fmt.Sprintf("unexpected status code: %d for url %s: %s", e.Code, e.URL, e.Body)
}

// HTTPFetcher загружает документы лент и ответы API по HTTP.
// Содержит HTTP-клиент с таймаутом и логгер для записи событий.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

// Option настраивает HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout задает таймаут одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent задает заголовок User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithClient подменяет HTTP-клиент. Таймаут клиента сохраняется, если он задан.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher создает новый экземпляр HTTPFetcher.
// По умолчанию таймаут запроса 30 секунд.
func NewHTTPFetcher(log *slog.Logger, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		log:       log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch выполняет GET-запрос по указанному URL.
// Возвращает тело ответа как io.ReadCloser, которое должно быть закрыто после использования.
// При коде ответа, отличном от 200, возвращает *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	safeURL := redact(rawURL)
	log := f.log.With(slog.String("url", safeURL))
	log.Debug("Fetching URL")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Error("Failed to create HTTP request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create request for url %s: %w", safeURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		err = redactErr(err, safeURL)
		log.Error(
			"HTTP request failed",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to fetch url %s: %w", safeURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		log.Error(
			"Unexpected status code",
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, &StatusError{
			Code: resp.StatusCode,
			URL:  safeURL,
			Body: strings.TrimSpace(string(snippet)),
		}
	}
	log.Debug("Successfully fetched URL")
	return resp.Body, nil
}

// redact убирает строку запроса, в которой может оказаться ключ API.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	u.RawQuery = ""
	return u.String() + "?..."
}

func redactErr(err error, safeURL string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = safeURL
	}
	return err
}
