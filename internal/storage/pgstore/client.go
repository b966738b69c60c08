package pgstore

import (
	"context"

	"github.com/collab/internal/model"
	"github.com/collab/internal/repository"
)

// Client реализует PresenceStore поверх таблицы presence: присутствие переживает
// перезапуск и не требует Redis (presence_backend=pg, режим -dev).
type Client struct {
	repo *repository.PresenceRepository
}

func New(repo *repository.PresenceRepository) *Client {
	return &Client{repo: repo}
}

func (c *Client) Close() error { return nil }

func (c *Client) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	return c.repo.UpsertPresence(ctx, rec)
}

func (c *Client) FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error) {
	return c.repo.FetchPresence(ctx, userIDs)
}
