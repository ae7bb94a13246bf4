package usecase

import (
	"context"
	"errors"
	"log/slog"
	"marketnews/internal/adapter/dates"
	"marketnews/internal/domain"
	"marketnews/internal/source"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DedupStrategy выбирает способ отсеивания уже сохраненных URL.
type DedupStrategy string

const (
	// DedupAtomic - одна операция InsertIfAbsent на запись.
	DedupAtomic DedupStrategy = "atomic"
	// DedupCheck - Exists, затем Insert. Между вызовами возможна гонка
	// с параллельным прогоном.
	DedupCheck DedupStrategy = "check"
)

// Options настраивает поведение Collector.
type Options struct {
	Dedup DedupStrategy
	// IsolateFailures продолжает прогон после сбоя ленты или NewsAPI.
	// Ошибки хранилища останавливают прогон всегда.
	IsolateFailures bool
	// StoreTimeout ограничивает каждый вызов хранилища; 0 - без ограничения.
	StoreTimeout time.Duration
}

// Collector выполняет один прогон сбора: источники по очереди,
// нормализация записей и дедупликация по url.
type Collector struct {
	sources []source.Source
	store   NewsStore
	dates   DateNormalizer
	opts    Options
	log     *slog.Logger
}

// NewCollector создает прогон над источниками в заданном порядке.
// Если normalizer равен nil, используется нормализатор с текущим временем.
func NewCollector(sources []source.Source, store NewsStore, normalizer DateNormalizer, opts Options, log *slog.Logger) *Collector {
	if normalizer == nil {
		normalizer = dates.NewNormalizer(nil)
	}
	if opts.Dedup == "" {
		opts.Dedup = DedupAtomic
	}
	return &Collector{
		sources: sources,
		store:   store,
		dates:   normalizer,
		opts:    opts,
		log:     log.With(slog.String("component", "collector")),
	}
}

// Run проходит все источники и возвращает итог прогона.
// При ошибке итог содержит прогресс, достигнутый до сбоя.
func (c *Collector) Run(ctx context.Context) (domain.Summary, error) {
	start := time.Now()
	summary := domain.NewSummary()
	log := c.log.With(slog.String("op", "run"))
	log.Info("Collection pass started",
		slog.Int("sources", len(c.sources)),
		slog.String("dedup", string(c.opts.Dedup)),
	)
	for _, src := range c.sources {
		if err := c.drain(ctx, src, &summary); err != nil {
			log.Error("Collection pass aborted",
				slog.String("source", string(src.Kind())),
				slog.Int("inserted", summary.Inserted),
				slog.Int("skipped", summary.Skipped),
				slog.Any("error", err),
			)
			return summary, err
		}
	}
	log.Info("Collection pass finished",
		slog.Int("considered", summary.Considered),
		slog.Int("inserted", summary.Inserted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (c *Collector) drain(ctx context.Context, src source.Source, summary *domain.Summary) error {
	kind := src.Kind()
	for raw, err := range src.Items(ctx) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			summary.Failures = append(summary.Failures, failureOf(kind, err))
			if !c.opts.IsolateFailures {
				return err
			}
			c.log.Warn("Source failure skipped", slog.String("source", string(kind)), slog.Any("error", err))
			continue
		}
		item := c.toNewsItem(raw)
		if item.URL == "" {
			c.log.Warn("Entry without url skipped",
				slog.String("source", item.Source),
				slog.String("headline", item.Headline),
			)
			summary.Count(kind, false)
			continue
		}
		inserted, err := c.save(ctx, item)
		if err != nil {
			return err
		}
		summary.Count(kind, inserted)
		if inserted {
			c.log.Debug("Item stored", slog.String("url", item.URL))
		} else {
			c.log.Debug("Item already stored", slog.String("url", item.URL))
		}
	}
	return nil
}

func (c *Collector) save(ctx context.Context, item domain.NewsItem) (bool, error) {
	if c.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
	}
	if c.opts.Dedup == DedupAtomic {
		return c.store.InsertIfAbsent(ctx, item)
	}
	exists, err := c.store.Exists(ctx, item.URL)
	if err != nil || exists {
		return false, err
	}
	if err := c.store.Insert(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

// toNewsItem приводит запись источника к строке market_news.
// Даты RSS нормализуются; publishedAt из NewsAPI сохраняется как есть.
func (c *Collector) toNewsItem(raw domain.RawItem) domain.NewsItem {
	item := domain.NewsItem{
		Headline:    norm.NFC.String(strings.TrimSpace(raw.Title)),
		Content:     strings.TrimSpace(raw.Summary),
		Source:      strings.TrimSpace(raw.SourceName),
		URL:         strings.TrimSpace(raw.Link),
		PublishedAt: raw.Published,
	}
	if raw.Kind == domain.KindRSS {
		published, ok := c.dates.NormalizeChecked(raw.Published)
		if !ok {
			c.log.Debug("Unparsed date replaced with current time",
				slog.String("url", item.URL),
				slog.String("raw", raw.Published),
			)
		}
		item.PublishedAt = dates.FormatTimestamp(published)
	}
	return item
}

func failureOf(kind domain.SourceKind, err error) domain.SourceFailure {
	failure := domain.SourceFailure{Kind: kind, Error: err.Error()}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		failure.Origin = fetchErr.Origin
	}
	return failure
}
