package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelRepository struct {
	pool *pgxpool.Pool
}

func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{pool: pool}
}

// channelCols — колонки канала с пользовательскими флагами и числом непрочитанных для $1.
const channelCols = `c.id, c.code, c.name, c.team_id, c.archived, c.last_activity_at,
		COALESCE(cm.favorite, false), COALESCE(cm.muted, false),
		(SELECT COUNT(*) FROM messages m
		  WHERE m.channel_id = c.id AND m.parent_id IS NULL AND m.is_deleted = false
		    AND m.author_id <> $1 AND m.created_at > COALESCE(cm.last_read_at, c.created_at))`

func scanChannel(s interface{ Scan(dest ...any) error }, c *model.Channel) error {
	return s.Scan(&c.ID, &c.Code, &c.Name, &c.TeamID, &c.Archived, &c.LastActivityAt, &c.Favorite, &c.Muted, &c.UnreadCount)
}

func (r *ChannelRepository) Create(ctx context.Context, c *model.Channel) error {
	defer logger.DeferLogDuration("channel.Create", time.Now())()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channels (id, code, name, team_id, archived, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Code, c.Name, c.TeamID, c.Archived, c.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("channelRepo.Create: %w", err)
	}
	return nil
}

// ListForUser возвращает активные и архивные каналы с флагами пользователя.
func (r *ChannelRepository) ListForUser(ctx context.Context, userID string) (active, archived []model.Channel, err error) {
	defer logger.DeferLogDuration("channel.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+channelCols+`
		 FROM channels c
		 LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $1
		 ORDER BY c.code`, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("channelRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	active = make([]model.Channel, 0, 16)
	for rows.Next() {
		var c model.Channel
		if err := scanChannel(rows, &c); err != nil {
			return nil, nil, fmt.Errorf("channelRepo.ListForUser scan: %w", err)
		}
		if c.Archived {
			archived = append(archived, c)
		} else {
			active = append(active, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("channelRepo.ListForUser rows: %w", err)
	}
	return active, archived, nil
}

func (r *ChannelRepository) GetByCode(ctx context.Context, userID, code string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.GetByCode", time.Now())()
	c := &model.Channel{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+channelCols+`
		 FROM channels c
		 LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $1
		 WHERE c.code = $2`, userID, code,
	)
	if err := scanChannel(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("channelRepo.GetByCode: %w", err)
	}
	return c, nil
}

func (r *ChannelRepository) SetArchived(ctx context.Context, channelID string, archived bool) error {
	defer logger.DeferLogDuration("channel.SetArchived", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE channels SET archived = $1 WHERE id = $2`, archived, channelID)
	if err != nil {
		return fmt.Errorf("channelRepo.SetArchived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFlags меняет избранное/без звука для пользователя; nil — оставить как есть.
func (r *ChannelRepository) SetFlags(ctx context.Context, channelID, userID string, favorite, muted *bool) error {
	defer logger.DeferLogDuration("channel.SetFlags", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id, favorite, muted)
		 VALUES ($1, $2, COALESCE($3, false), COALESCE($4, false))
		 ON CONFLICT (channel_id, user_id) DO UPDATE
		 SET favorite = COALESCE($3, channel_members.favorite),
		     muted = COALESCE($4, channel_members.muted)`,
		channelID, userID, favorite, muted,
	)
	if err != nil {
		return fmt.Errorf("channelRepo.SetFlags: %w", err)
	}
	return nil
}

// MarkRead сдвигает last_read_at пользователя в канале.
func (r *ChannelRepository) MarkRead(ctx context.Context, channelID, userID string, t time.Time) error {
	defer logger.DeferLogDuration("channel.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id, last_read_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id, user_id) DO UPDATE
		 SET last_read_at = GREATEST(channel_members.last_read_at, EXCLUDED.last_read_at)`,
		channelID, userID, t,
	)
	if err != nil {
		return fmt.Errorf("channelRepo.MarkRead: %w", err)
	}
	return nil
}

// Topics возвращает темы канала по алфавиту.
func (r *ChannelRepository) Topics(ctx context.Context, channelID string) ([]string, error) {
	defer logger.DeferLogDuration("channel.Topics", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM channel_topics WHERE channel_id = $1 ORDER BY name`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.Topics query: %w", err)
	}
	defer rows.Close()

	topics := make([]string, 0, 8)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("channelRepo.Topics scan: %w", err)
		}
		topics = append(topics, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channelRepo.Topics rows: %w", err)
	}
	return topics, nil
}

func (r *ChannelRepository) AddTopic(ctx context.Context, channelID, name string) error {
	defer logger.DeferLogDuration("channel.AddTopic", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO channel_topics (channel_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		channelID, name,
	)
	if err != nil {
		return fmt.Errorf("channelRepo.AddTopic: %w", err)
	}
	return nil
}
