package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"marketnews/internal/adapter/dates"
	"marketnews/internal/domain"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS market_news (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	headline TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	published_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_market_news_published_at ON market_news (published_at)`,
}

// SQLiteNewsDB - локальное файловое хранилище с той же схемой, что и market_news в Postgres.
type SQLiteNewsDB struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite открывает или создает файл базы и применяет схему.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLiteNewsDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite допускает только одного писателя.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
	}
	log.Info("SQLite news storage opened",
		slog.String("component", "storage"),
		slog.String("path", path),
	)
	return &SQLiteNewsDB{db: db, log: log.With(slog.String("component", "storage"))}, nil
}

func (s *SQLiteNewsDB) Close() {
	s.log.Info("Closing sqlite database")
	s.db.Close()
}

func (s *SQLiteNewsDB) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM market_news WHERE url = ?)`, url).Scan(&exists)
	if err != nil {
		return false, &domain.StoreError{Op: "exists", URL: url, Err: err}
	}
	return exists, nil
}

func (s *SQLiteNewsDB) Insert(ctx context.Context, item domain.NewsItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO market_news (headline, content, source, url, published_at) VALUES (?, ?, ?, ?, ?)`,
		item.Headline, item.Content, item.Source, item.URL, storedTimestamp(item.PublishedAt),
	)
	if err != nil {
		s.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return nil
}

func (s *SQLiteNewsDB) InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO market_news (headline, content, source, url, published_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`,
		item.Headline, item.Content, item.Source, item.URL, storedTimestamp(item.PublishedAt),
	)
	if err != nil {
		s.log.Error("Insert failed", slog.String("url", item.URL), slog.Any("error", err))
		return false, &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	return n == 1, nil
}

func (s *SQLiteNewsDB) Latest(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, headline, content, source, url, published_at
		FROM market_news
		ORDER BY julianday(published_at) DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "latest", Err: err}
	}
	defer rows.Close()
	var items []domain.NewsItem
	for rows.Next() {
		var item domain.NewsItem
		if err := rows.Scan(&item.ID, &item.Headline, &item.Content, &item.Source, &item.URL, &item.PublishedAt); err != nil {
			return nil, &domain.StoreError{Op: "latest", Err: fmt.Errorf("failed to scan row: %w", err)}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "latest", Err: err}
	}
	return items, nil
}

// storedTimestamp приводит дату к UTC: published_at хранится текстом,
// и строки с разными смещениями иначе не сравнимы.
func storedTimestamp(raw string) string {
	if t, ok := dates.Parse(raw); ok {
		return dates.FormatTimestamp(t.UTC())
	}
	return raw
}
