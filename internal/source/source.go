// Package source содержит стратегии получения сырых новостей: RSS-ленты и NewsAPI.
package source

import (
	"context"
	"io"
	"iter"
	"marketnews/internal/domain"
)

// Source - общая возможность всех стратегий.
// Items отдает записи в порядке источника. Ошибка передается парой
// (RawItem{}, *domain.FetchError); продолжать ли перебор, решает потребитель.
type Source interface {
	Kind() domain.SourceKind
	Items(ctx context.Context) iter.Seq2[domain.RawItem, error]
}

// Fetcher загружает документ по URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// FeedParser преобразует документ ленты в доменную модель.
type FeedParser interface {
	Parse(ctx context.Context, reader io.Reader) (*domain.Feed, error)
}
