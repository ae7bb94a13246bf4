package source

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"marketnews/internal/domain"
)

// MaxEntriesPerFeed - сколько первых записей каждой ленты рассматривается за прогон.
const MaxEntriesPerFeed = 5

// DefaultFeeds - ленты, которые опрашиваются, если список не задан.
var DefaultFeeds = []string{
	"https://www.moneycontrol.com/rss/business.xml",
	"https://economictimes.indiatimes.com/markets/rssfeeds/1977021501.cms",
	"https://www.business-standard.com/rss/markets-106.rss",
	"https://www.livemint.com/rss/markets",
	"https://www.financialexpress.com/market/rss",
}

// RSS опрашивает ленты по очереди.
type RSS struct {
	feeds   []string
	fetcher Fetcher
	parser  FeedParser
	log     *slog.Logger
}

func NewRSS(feeds []string, fetcher Fetcher, parser FeedParser, log *slog.Logger) *RSS {
	return &RSS{
		feeds:   feeds,
		fetcher: fetcher,
		parser:  parser,
		log:     log.With(slog.String("component", "rss")),
	}
}

func (s *RSS) Kind() domain.SourceKind { return domain.KindRSS }

// Feeds возвращает опрашиваемые адреса.
func (s *RSS) Feeds() []string { return s.feeds }

// Items загружает следующую ленту только после того, как потребитель обработал
// записи предыдущей.
func (s *RSS) Items(ctx context.Context) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		for _, url := range s.feeds {
			feed, err := s.load(ctx, url)
			if err != nil {
				if !yield(domain.RawItem{}, &domain.FetchError{Kind: domain.KindRSS, Origin: url, Err: err}) {
					return
				}
				continue
			}
			entries := feed.Entries
			if len(entries) > MaxEntriesPerFeed {
				entries = entries[:MaxEntriesPerFeed]
			}
			s.log.Debug("Feed loaded",
				slog.String("url", url),
				slog.String("feed", feed.Title),
				slog.Int("entries_total", len(feed.Entries)),
				slog.Int("entries_taken", len(entries)),
			)
			for _, e := range entries {
				raw := domain.RawItem{
					Kind:       domain.KindRSS,
					Title:      e.Title,
					Link:       e.Link,
					Summary:    e.Summary,
					Published:  e.Published,
					SourceName: feed.Title,
					Origin:     url,
				}
				if !yield(raw, nil) {
					return
				}
			}
		}
	}
}

func (s *RSS) load(ctx context.Context, url string) (*domain.Feed, error) {
	reader, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	feed, err := s.parser.Parse(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return feed, nil
}
