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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// messageCols — колонки сообщения; reply_count считается по неудалённым ответам.
const messageCols = `m.id, m.channel_id, m.parent_id, m.author_id, mb.name, m.body, m.attachment, m.attachments,
		m.topic, m.created_at, m.edited_at IS NOT NULL, m.is_deleted,
		(SELECT COUNT(*) FROM messages c WHERE c.parent_id = m.id AND c.is_deleted = false)`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	var parent *string
	if err := s.Scan(&m.ID, &m.ChannelID, &parent, &m.AuthorID, &m.AuthorName, &m.Body, &m.Attachment, &m.Attachments,
		&m.Topic, &m.CreatedAt, &m.Edited, &m.IsDeleted, &m.ReplyCount); err != nil {
		return err
	}
	m.ParentID = parent
	return nil
}

// Create сохраняет сообщение и возвращает его каноническую форму: идентификатор,
// время сервера и имя автора. m.ID можно задать заранее (ключ идемпотентности).
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	attachments := m.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Create begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := *m
	err = tx.QueryRow(ctx,
		`WITH ins AS (
			INSERT INTO messages (id, channel_id, parent_id, author_id, body, attachment, attachments, topic)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
			RETURNING created_at, author_id
		 )
		 SELECT ins.created_at, mb.name FROM ins JOIN members mb ON mb.id = ins.author_id`,
		m.ID, m.ChannelID, m.ParentID, m.AuthorID, m.Body, m.Attachment, attachments, m.Topic,
	).Scan(&out.CreatedAt, &out.AuthorName)
	if errors.Is(err, pgx.ErrNoRows) {
		// Повтор с тем же идентификатором: возвращаем уже сохранённую строку.
		return r.GetByID(ctx, m.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Create: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE channels SET last_activity_at = GREATEST(last_activity_at, $2) WHERE id = $1`,
		m.ChannelID, out.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("msgRepo.Create touch channel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("msgRepo.Create commit: %w", err)
	}
	out.Edited, out.IsDeleted, out.ReplyCount = false, false, 0
	out.Reactions, out.Tags = nil, nil
	return &out, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+`
		 FROM messages m
		 JOIN members mb ON mb.id = m.author_id
		 WHERE m.id = $1`, id,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	list := []model.Message{*m}
	if err := r.hydrate(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListMessages возвращает последние limit сообщений верхнего уровня в хронологическом порядке.
func (r *MessageRepository) ListMessages(ctx context.Context, channelID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (
			SELECT `+messageCols+`
			FROM messages m
			JOIN members mb ON mb.id = m.author_id
			WHERE m.channel_id = $1 AND m.parent_id IS NULL
			ORDER BY m.created_at DESC
			LIMIT $2
		 ) t ORDER BY 10`, channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListMessages query: %w", err)
	}
	msgs, err := collectMessages(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListMessages: %w", err)
	}
	if err := r.hydrate(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListReplies возвращает ответы на parentID в хронологическом порядке.
func (r *MessageRepository) ListReplies(ctx context.Context, parentID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListReplies", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages m
		 JOIN members mb ON mb.id = m.author_id
		 WHERE m.parent_id = $1
		 ORDER BY m.created_at`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListReplies query: %w", err)
	}
	msgs, err := collectMessages(rows, 16)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListReplies: %w", err)
	}
	if err := r.hydrate(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func collectMessages(rows pgx.Rows, capHint int) ([]model.Message, error) {
	defer rows.Close()
	msgs := make([]model.Message, 0, capHint)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return msgs, nil
}

// hydrate подгружает реакции и теги одним запросом на каждую таблицу.
func (r *MessageRepository) hydrate(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[string]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		byID[msgs[i].ID] = i
	}

	rows, err := r.pool.Query(ctx,
		`SELECT message_id::text, emoji, array_agg(user_id::text ORDER BY created_at)
		 FROM message_reactions
		 WHERE message_id = ANY($1::uuid[])
		 GROUP BY message_id, emoji
		 ORDER BY message_id, MIN(created_at)`, ids,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.hydrate reactions: %w", err)
	}
	for rows.Next() {
		var id string
		var rc model.Reaction
		if err := rows.Scan(&id, &rc.Emoji, &rc.UserIDs); err != nil {
			rows.Close()
			return fmt.Errorf("msgRepo.hydrate reactions scan: %w", err)
		}
		i := byID[id]
		msgs[i].Reactions = append(msgs[i].Reactions, rc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("msgRepo.hydrate reactions rows: %w", err)
	}

	rows, err = r.pool.Query(ctx,
		`SELECT message_id::text, tag FROM message_tags WHERE message_id = ANY($1::uuid[]) ORDER BY tag`, ids,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.hydrate tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("msgRepo.hydrate tags scan: %w", err)
		}
		i := byID[id]
		msgs[i].Tags = append(msgs[i].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("msgRepo.hydrate tags rows: %w", err)
	}
	return nil
}

// UpdateBody меняет текст сообщения и отмечает его отредактированным.
func (r *MessageRepository) UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateBody", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET body = $1, edited_at = $2 WHERE id = $3 AND is_deleted = false`,
		body, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateBody: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete помечает сообщение удалённым и очищает содержимое.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = true, body = '', attachment = NULL, attachments = '[]'
		 WHERE id = $1 AND is_deleted = false`, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	return nil
}
