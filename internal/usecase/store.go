package usecase

import (
	"context"
	"marketnews/internal/domain"
	"time"
)

// NewsStore определяет операции хранилища, нужные прогону сбора.
// Проверка и вставка разделены, чтобы поддержать стратегию дедупликации "check".
type NewsStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, item domain.NewsItem) error
	InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error)
}

// DateNormalizer приводит строку даты ленты к моменту времени.
// ok=false означает, что вместо даты источника подставлено текущее время.
type DateNormalizer interface {
	NormalizeChecked(raw string) (time.Time, bool)
}
