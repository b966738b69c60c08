package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PresenceRepository хранит присутствие в Postgres (presence_backend=pg).
type PresenceRepository struct {
	pool *pgxpool.Pool
}

func NewPresenceRepository(pool *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{pool: pool}
}

// UpsertPresence записывает состояние; более старая запись не перетирает более новую.
func (r *PresenceRepository) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	defer logger.DeferLogDuration("presence.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO presence (user_id, state, last_active_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET state = EXCLUDED.state, last_active_at = EXCLUDED.last_active_at
		 WHERE presence.last_active_at <= EXCLUDED.last_active_at`,
		rec.UserID, string(rec.State), rec.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("presenceRepo.Upsert: %w", err)
	}
	return nil
}

// FetchPresence возвращает записи для userIDs; пользователей без записи в ответе нет.
func (r *PresenceRepository) FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error) {
	defer logger.DeferLogDuration("presence.Fetch", time.Now())()
	out := make(map[string]model.PresenceRecord, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT user_id::text, state, last_active_at FROM presence WHERE user_id = ANY($1::uuid[])`, userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("presenceRepo.Fetch query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.PresenceRecord
		var state string
		if err := rows.Scan(&rec.UserID, &state, &rec.LastActiveAt); err != nil {
			return nil, fmt.Errorf("presenceRepo.Fetch scan: %w", err)
		}
		rec.State = model.PresenceStatus(state)
		out[rec.UserID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("presenceRepo.Fetch rows: %w", err)
	}
	return out, nil
}
