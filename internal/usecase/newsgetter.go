package usecase

import (
	"context"
	"marketnews/internal/domain"
)

// NewsReader определяет интерфейс для получения новостей из хранилища.
// Используется для предоставления данных через API.
type NewsReader interface {
	Latest(ctx context.Context, limit int) ([]domain.NewsItem, error)
}

// NewsGetterUseCase возвращает сохраненные новости для HTTP API.
type NewsGetterUseCase struct {
	storage NewsReader
}

// NewNewsGetterUseCase создает новый экземпляр UseCase для получения новостей.
func NewNewsGetterUseCase(s NewsReader) *NewsGetterUseCase {
	return &NewsGetterUseCase{storage: s}
}

// GetNews возвращает не более limit последних новостей по published_at.
func (us *NewsGetterUseCase) GetNews(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	return us.storage.Latest(ctx, limit)
}
