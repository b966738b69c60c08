package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PinnedRepository struct {
	pool *pgxpool.Pool
}

func NewPinnedRepository(pool *pgxpool.Pool) *PinnedRepository {
	return &PinnedRepository{pool: pool}
}

func (r *PinnedRepository) Pin(ctx context.Context, p model.PinnedMessage) error {
	defer logger.DeferLogDuration("pinned.Pin", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pinned_messages (channel_id, message_id, pinned_by, pinned_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		p.ChannelID, p.MessageID, p.PinnedBy, p.PinnedAt,
	)
	if err != nil {
		return fmt.Errorf("pinnedRepo.Pin: %w", err)
	}
	return nil
}

func (r *PinnedRepository) Unpin(ctx context.Context, channelID, messageID string) error {
	defer logger.DeferLogDuration("pinned.Unpin", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM pinned_messages WHERE channel_id = $1 AND message_id = $2`,
		channelID, messageID,
	)
	if err != nil {
		return fmt.Errorf("pinnedRepo.Unpin: %w", err)
	}
	return nil
}

// ListPinned возвращает закреплённые сообщения канала в порядке закрепления.
func (r *PinnedRepository) ListPinned(ctx context.Context, channelID string) ([]model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pinned.ListPinned", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT channel_id, message_id, pinned_by, pinned_at
		 FROM pinned_messages
		 WHERE channel_id = $1
		 ORDER BY pinned_at`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.ListPinned query: %w", err)
	}
	defer rows.Close()

	pins := make([]model.PinnedMessage, 0, 4)
	for rows.Next() {
		var p model.PinnedMessage
		if err := rows.Scan(&p.ChannelID, &p.MessageID, &p.PinnedBy, &p.PinnedAt); err != nil {
			return nil, fmt.Errorf("pinnedRepo.ListPinned scan: %w", err)
		}
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pinnedRepo.ListPinned rows: %w", err)
	}
	return pins, nil
}
