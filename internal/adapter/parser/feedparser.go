package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"marketnews/internal/domain"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedParser разбирает документы RSS и Atom через gofeed.
type FeedParser struct {
	parser *gofeed.Parser
	log    *slog.Logger
}

func NewFeedParser(log *slog.Logger) *FeedParser {
	return &FeedParser{
		parser: gofeed.NewParser(),
		log:    log,
	}
}

// Parse реализует метод интерфейса source.FeedParser.
// Даты записей не разбираются: строка публикации передается дальше как есть.
func (p *FeedParser) Parse(ctx context.Context, reader io.Reader) (*domain.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := p.parser.Parse(reader)
	if err != nil {
		p.log.Error(
			"Error decoding feed",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	feed := domain.Feed{
		Title:   strings.TrimSpace(parsed.Title),
		Link:    parsed.Link,
		Entries: make([]domain.Entry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		feed.Entries = append(feed.Entries, domain.Entry{
			Title:     item.Title,
			Link:      item.Link,
			Summary:   summaryOf(item),
			Published: publishedOf(item),
		})
	}
	return &feed, nil
}

func summaryOf(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

// publishedOf - для Atom без <published> используется <updated>.
func publishedOf(item *gofeed.Item) string {
	if item.Published != "" {
		return item.Published
	}
	return item.Updated
}
