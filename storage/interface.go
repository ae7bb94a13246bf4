package storage

import (
	"context"
	"marketnews/internal/domain"
)

// TableName - логическая таблица новостей.
const TableName = "market_news"

// Storage определяет общий интерфейс хранилища новостей.
// Хранилище только добавляет строки: существующие записи не обновляются и не удаляются.
type Storage interface {
	// Exists сообщает, есть ли строка с таким url.
	Exists(ctx context.Context, url string) (bool, error)
	// Insert добавляет строку без проверки на дубликат.
	Insert(ctx context.Context, item domain.NewsItem) error
	// InsertIfAbsent атомарно добавляет строку, если url еще не встречался.
	// Возвращает true, если строка была добавлена.
	InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error)
	// Latest возвращает последние новости по published_at.
	Latest(ctx context.Context, limit int) ([]domain.NewsItem, error)
	Close()
}
