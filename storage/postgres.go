package storage

import (
	"context"
	"fmt"
	"log/slog"
	"marketnews/internal/adapter/dates"
	"marketnews/internal/domain"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresNewsDB struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresNewsDB(pool *pgxpool.Pool, log *slog.Logger) *PostgresNewsDB {
	log.Info("Initializing Postgres news storage", slog.String("component", "storage"))
	return &PostgresNewsDB{
		pool: pool,
		log:  log.With(slog.String("component", "storage")),
	}
}

func (db *PostgresNewsDB) Close() {
	db.log.Info("Closing database connection pool")
	db.pool.Close()
}

func (db *PostgresNewsDB) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM market_news WHERE url = $1)`, url,
	).Scan(&exists)
	if err != nil {
		db.log.Error("Existence check failed", slog.String("url", url), slog.Any("error", err))
		return false, &domain.StoreError{Op: "exists", URL: url, Err: err}
	}
	return exists, nil
}

func (db *PostgresNewsDB) Insert(ctx context.Context, item domain.NewsItem) error {
	query := `
	INSERT INTO market_news (headline, content, source, url, published_at)
	VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := db.pool.Exec(ctx, query, item.Headline, item.Content, item.Source, item.URL, item.PublishedAt); err != nil {
		db.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return nil
}

func (db *PostgresNewsDB) InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error) {
	query := `
	INSERT INTO market_news (headline, content, source, url, published_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (url) DO NOTHING;
	`
	tag, err := db.pool.Exec(ctx, query, item.Headline, item.Content, item.Source, item.URL, item.PublishedAt)
	if err != nil {
		db.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return false, &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return insertedFrom(tag), nil
}

// insertedFrom сообщает, добавил ли INSERT ... ON CONFLICT DO NOTHING строку.
func insertedFrom(tag pgconn.CommandTag) bool {
	return tag.Insert() && tag.RowsAffected() == 1
}

func (db *PostgresNewsDB) Latest(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	const op = "storage.postgres.Latest"
	log := db.log.With(slog.String("op", op), slog.Int("limit", limit))
	query := `
	SELECT id, headline, content, source, url, published_at
	FROM market_news
	ORDER BY published_at DESC
	LIMIT $1;
	`
	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		log.Error("Database query failed", slog.Any("error", err))
		return nil, &domain.StoreError{Op: "latest", Err: fmt.Errorf("%s: failed to execute query: %w", op, err)}
	}
	defer rows.Close()
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.NewsItem, error) {
		var item domain.NewsItem
		var published time.Time
		err := row.Scan(
			&item.ID,
			&item.Headline,
			&item.Content,
			&item.Source,
			&item.URL,
			&published,
		)
		item.PublishedAt = dates.FormatTimestamp(published)
		return item, err
	})
	if err != nil {
		log.Error("Failed to collect rows", slog.Any("error", err))
		return nil, &domain.StoreError{Op: "latest", Err: fmt.Errorf("%s: failed to scan row: %w", op, err)}
	}
	log.Debug("Retrieved news items", slog.Int("count", len(items)))
	return items, nil
}
