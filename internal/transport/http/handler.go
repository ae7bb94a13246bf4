package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"marketnews/internal/domain"
	"marketnews/internal/worker"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type newsGetter interface {
	GetNews(ctx context.Context, limit int) ([]domain.NewsItem, error)
}

// passReporter отдает итог последнего прогона воркера.
type passReporter interface {
	LastReport() *worker.Report
}

type Handler struct {
	log        *slog.Logger
	newsGetter newsGetter
	reporter   passReporter
	requests   atomic.Uint64
}

// NewHandler создает обработчики API. reporter может быть nil.
func NewHandler(log *slog.Logger, getter newsGetter, reporter passReporter) *Handler {
	return &Handler{
		log:        log.With(slog.String("component", "http")),
		newsGetter: getter,
		reporter:   reporter,
	}
}

// getNews - хендлер для эндпоинта GET /api/news
func (h *Handler) getNews(w http.ResponseWriter, r *http.Request) {
	const op = "transport.http/getNews"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", h.requestID()),
	)
	if r.Method != http.MethodGet {
		log.Warn("method not allowed", slog.String("method", r.Method))
		respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			log.Warn("invalid limit parameter", slog.String("limit", limitStr))
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = min(limit, maxLimit)
	}

	news, err := h.newsGetter.GetNews(r.Context(), limit)
	if err != nil {
		log.Error("Failed to get news", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if news == nil {
		news = []domain.NewsItem{}
	}
	respondWithJSON(w, http.StatusOK, news)
}

type healthResponse struct {
	Status   string         `json:"status"`
	LastPass *worker.Report `json:"last_pass,omitempty"`
}

// healthCheck - хендлер для проверки состояния сервиса
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.reporter != nil {
		resp.LastPass = h.reporter.LastReport()
		if resp.LastPass != nil && resp.LastPass.Error != "" {
			resp.Status = "degraded"
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) requestID() string {
	return fmt.Sprintf("req-%s-%d", time.Now().Format("20060102150405"), h.requests.Add(1))
}
