package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectRepository — личные переписки: участники и упорядоченные сообщения без тредов.
type DirectRepository struct {
	pool *pgxpool.Pool
}

func NewDirectRepository(pool *pgxpool.Pool) *DirectRepository {
	return &DirectRepository{pool: pool}
}

// ListThreads возвращает переписки пользователя с участниками и числом непрочитанных.
func (r *DirectRepository) ListThreads(ctx context.Context, userID string) ([]model.DirectThread, error) {
	defer logger.DeferLogDuration("direct.ListThreads", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT t.id,
		        (SELECT array_agg(p.user_id::text ORDER BY p.user_id) FROM direct_participants p WHERE p.thread_id = t.id),
		        COALESCE((SELECT MAX(m.created_at) FROM direct_messages m WHERE m.thread_id = t.id), t.created_at),
		        (SELECT COUNT(*) FROM direct_messages m
		          WHERE m.thread_id = t.id AND m.author_id <> $1 AND m.created_at > me.last_read_at AND m.is_deleted = false)
		 FROM direct_threads t
		 JOIN direct_participants me ON me.thread_id = t.id AND me.user_id = $1
		 ORDER BY 3 DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("directRepo.ListThreads query: %w", err)
	}
	defer rows.Close()

	threads := make([]model.DirectThread, 0, 8)
	for rows.Next() {
		var d model.DirectThread
		if err := rows.Scan(&d.ID, &d.ParticipantIDs, &d.LastActivityAt, &d.UnreadCount); err != nil {
			return nil, fmt.Errorf("directRepo.ListThreads scan: %w", err)
		}
		threads = append(threads, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directRepo.ListThreads rows: %w", err)
	}
	return threads, nil
}

// FindThread ищет переписку с точно таким набором участников.
func (r *DirectRepository) FindThread(ctx context.Context, participantIDs []string) (*model.DirectThread, error) {
	defer logger.DeferLogDuration("direct.FindThread", time.Now())()
	ids := append([]string(nil), participantIDs...)
	sort.Strings(ids)
	d := &model.DirectThread{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.created_at
		 FROM direct_threads t
		 WHERE (SELECT array_agg(p.user_id::text ORDER BY p.user_id) FROM direct_participants p WHERE p.thread_id = t.id) = $1::text[]
		 LIMIT 1`, ids,
	).Scan(&d.ID, &d.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directRepo.FindThread: %w", err)
	}
	d.ParticipantIDs = ids
	return d, nil
}

// GetOrCreateThread возвращает переписку участников, создавая её при отсутствии.
func (r *DirectRepository) GetOrCreateThread(ctx context.Context, participantIDs []string) (*model.DirectThread, error) {
	defer logger.DeferLogDuration("direct.GetOrCreateThread", time.Now())()
	d, err := r.FindThread(ctx, participantIDs)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("directRepo.GetOrCreateThread begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d = &model.DirectThread{ID: uuid.New().String(), LastActivityAt: time.Now().UTC()}
	if _, err := tx.Exec(ctx, `INSERT INTO direct_threads (id, created_at) VALUES ($1, $2)`, d.ID, d.LastActivityAt); err != nil {
		return nil, fmt.Errorf("directRepo.GetOrCreateThread insert: %w", err)
	}
	for _, id := range participantIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO direct_participants (thread_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			d.ID, id,
		); err != nil {
			return nil, fmt.Errorf("directRepo.GetOrCreateThread participant: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("directRepo.GetOrCreateThread commit: %w", err)
	}
	d.ParticipantIDs = append([]string(nil), participantIDs...)
	sort.Strings(d.ParticipantIDs)
	return d, nil
}

// AddMessage сохраняет сообщение переписки и возвращает каноническую форму.
func (r *DirectRepository) AddMessage(ctx context.Context, threadID string, m *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("direct.AddMessage", time.Now())()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	out := *m
	err := r.pool.QueryRow(ctx,
		`WITH ins AS (
			INSERT INTO direct_messages (id, thread_id, author_id, body, attachment)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, author_id
		 )
		 SELECT ins.created_at, mb.name FROM ins JOIN members mb ON mb.id = ins.author_id`,
		m.ID, threadID, m.AuthorID, m.Body, m.Attachment,
	).Scan(&out.CreatedAt, &out.AuthorName)
	if err != nil {
		return nil, fmt.Errorf("directRepo.AddMessage: %w", err)
	}
	out.ChannelID = ""
	out.ParentID = nil
	return &out, nil
}

// ListMessages возвращает последние limit сообщений переписки в хронологическом порядке.
func (r *DirectRepository) ListMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("direct.ListMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (
			SELECT m.id, m.author_id, mb.name, m.body, m.attachment, m.created_at, m.is_deleted
			FROM direct_messages m
			JOIN members mb ON mb.id = m.author_id
			WHERE m.thread_id = $1
			ORDER BY m.created_at DESC
			LIMIT $2
		 ) t ORDER BY created_at`, threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("directRepo.ListMessages query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.AuthorName, &m.Body, &m.Attachment, &m.CreatedAt, &m.IsDeleted); err != nil {
			return nil, fmt.Errorf("directRepo.ListMessages scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directRepo.ListMessages rows: %w", err)
	}
	return msgs, nil
}

func (r *DirectRepository) MarkRead(ctx context.Context, threadID, userID string, t time.Time) error {
	defer logger.DeferLogDuration("direct.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE direct_participants SET last_read_at = GREATEST(last_read_at, $3) WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID, t,
	)
	if err != nil {
		return fmt.Errorf("directRepo.MarkRead: %w", err)
	}
	return nil
}
