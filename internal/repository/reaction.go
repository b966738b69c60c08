package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Toggle снимает реакцию пользователя, если она есть, иначе ставит. added сообщает итог.
func (r *ReactionRepository) Toggle(ctx context.Context, messageID, userID, emoji string) (added bool, err error) {
	defer logger.DeferLogDuration("reaction.Toggle", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle delete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}
	if err := r.add(ctx, messageID, userID, emoji); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ReactionRepository) add(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.add: %w", err)
	}
	return nil
}
