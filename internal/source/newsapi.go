package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"marketnews/internal/domain"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultNewsAPIEndpoint = "https://newsapi.org/v2/top-headlines"

	newsAPICountry  = "in"
	newsAPICategory = "business"
	newsAPIPageSize = 20
)

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	PublishedAt string  `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

// NewsAPI запрашивает главные деловые новости одним GET-запросом.
// Без ключа стратегия ничего не делает.
type NewsAPI struct {
	apiKey   string
	endpoint string
	fetcher  Fetcher
	log      *slog.Logger
}

func NewNewsAPI(apiKey, endpoint string, fetcher Fetcher, log *slog.Logger) *NewsAPI {
	if endpoint == "" {
		endpoint = DefaultNewsAPIEndpoint
	}
	return &NewsAPI{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		fetcher:  fetcher,
		log:      log.With(slog.String("component", "newsapi")),
	}
}

func (s *NewsAPI) Kind() domain.SourceKind { return domain.KindNewsAPI }

// Enabled сообщает, задан ли ключ API.
func (s *NewsAPI) Enabled() bool { return s.apiKey != "" }

func (s *NewsAPI) Items(ctx context.Context) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		if !s.Enabled() {
			s.log.Info("NewsAPI key is not set, skipping")
			return
		}
		articles, err := s.fetch(ctx)
		if err != nil {
			yield(domain.RawItem{}, &domain.FetchError{Kind: domain.KindNewsAPI, Origin: s.endpoint, Err: err})
			return
		}
		s.log.Debug("Headlines loaded", slog.Int("count", len(articles)))
		for _, a := range articles {
			raw := domain.RawItem{
				Kind:       domain.KindNewsAPI,
				Title:      a.Title,
				Link:       a.URL,
				Published:  a.PublishedAt,
				SourceName: a.Source.Name,
				Origin:     s.endpoint,
			}
			if a.Description != nil {
				raw.Summary = *a.Description
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func (s *NewsAPI) requestURL() (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", s.endpoint, err)
	}
	q := u.Query()
	q.Set("country", newsAPICountry)
	q.Set("category", newsAPICategory)
	q.Set("apiKey", s.apiKey)
	q.Set("pageSize", strconv.Itoa(newsAPIPageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *NewsAPI) fetch(ctx context.Context) ([]newsAPIArticle, error) {
	reqURL, err := s.requestURL()
	if err != nil {
		return nil, err
	}
	body, err := s.fetcher.Fetch(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var resp newsAPIResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Status == "error" {
		return nil, errors.New("api error " + resp.Code + ": " + resp.Message)
	}
	return resp.Articles, nil
}
