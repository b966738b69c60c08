package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SavedRepository — сохранённые сообщения пользователя по всем каналам.
type SavedRepository struct {
	pool *pgxpool.Pool
}

func NewSavedRepository(pool *pgxpool.Pool) *SavedRepository {
	return &SavedRepository{pool: pool}
}

func (r *SavedRepository) Save(ctx context.Context, userID, messageID string, at time.Time) error {
	defer logger.DeferLogDuration("saved.Save", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO saved_messages (user_id, message_id, saved_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		userID, messageID, at,
	)
	if err != nil {
		return fmt.Errorf("savedRepo.Save: %w", err)
	}
	return nil
}

func (r *SavedRepository) Unsave(ctx context.Context, userID, messageID string) error {
	defer logger.DeferLogDuration("saved.Unsave", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM saved_messages WHERE user_id = $1 AND message_id = $2`,
		userID, messageID,
	)
	if err != nil {
		return fmt.Errorf("savedRepo.Unsave: %w", err)
	}
	return nil
}

func (r *SavedRepository) List(ctx context.Context, userID string) ([]model.SavedMessage, error) {
	defer logger.DeferLogDuration("saved.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT s.message_id, m.channel_id, s.saved_at
		 FROM saved_messages s
		 JOIN messages m ON m.id = s.message_id
		 WHERE s.user_id = $1
		 ORDER BY s.saved_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("savedRepo.List query: %w", err)
	}
	defer rows.Close()

	saved := make([]model.SavedMessage, 0, 8)
	for rows.Next() {
		var s model.SavedMessage
		if err := rows.Scan(&s.MessageID, &s.ChannelID, &s.SavedAt); err != nil {
			return nil, fmt.Errorf("savedRepo.List scan: %w", err)
		}
		saved = append(saved, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("savedRepo.List rows: %w", err)
	}
	return saved, nil
}
