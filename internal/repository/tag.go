package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TagRepository struct {
	pool *pgxpool.Pool
}

func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

func (r *TagRepository) Add(ctx context.Context, messageID, tag string) error {
	defer logger.DeferLogDuration("tag.Add", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_tags (message_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		messageID, tag,
	)
	if err != nil {
		return fmt.Errorf("tagRepo.Add: %w", err)
	}
	return nil
}

func (r *TagRepository) Remove(ctx context.Context, messageID, tag string) error {
	defer logger.DeferLogDuration("tag.Remove", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_tags WHERE message_id = $1 AND tag = $2`,
		messageID, tag,
	)
	if err != nil {
		return fmt.Errorf("tagRepo.Remove: %w", err)
	}
	return nil
}
