package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/collab/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel — канал LISTEN/NOTIFY, в который пишет триггер messages_notify.
const NotifyChannel = "workspace_events"

// MessageFetcher читает сообщение целиком по идентификатору из уведомления.
type MessageFetcher interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
}

// PGStream получает события через Postgres LISTEN на выделенном соединении.
type PGStream struct {
	pool  *pgxpool.Pool
	fetch MessageFetcher
}

func NewPGStream(pool *pgxpool.Pool, fetch MessageFetcher) *PGStream {
	return &PGStream{pool: pool, fetch: fetch}
}

// Open забирает соединение из пула в монопольное владение и выполняет LISTEN.
// channelID == "" — события всех каналов (используется шлюзом).
func (s *PGStream) Open(ctx context.Context, channelID string) (Subscription, error) {
	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstream acquire: %w", err)
	}
	conn := pc.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("pgstream listen: %w", err)
	}
	return &pgSubscription{conn: conn, channelID: channelID, fetch: s.fetch}, nil
}

type pgSubscription struct {
	conn      *pgx.Conn
	channelID string
	fetch     MessageFetcher
}

func (p *pgSubscription) Next(ctx context.Context) (Event, error) {
	for {
		n, err := p.conn.WaitForNotification(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("pgstream wait: %w", err)
		}
		var note Notification
		if err := json.Unmarshal([]byte(n.Payload), &note); err != nil {
			logger.Errorf("pgstream: bad payload %q: %v", n.Payload, err)
			continue
		}
		if note.Table != "messages" || (p.channelID != "" && note.ChannelID != p.channelID) {
			continue
		}
		m, err := p.fetch.GetByID(ctx, note.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("pgstream fetch %s: %w", note.ID, err)
		}
		return Event{Type: note.Type(), ChannelID: note.ChannelID, Message: *m}, nil
	}
}

func (p *pgSubscription) Close() error {
	return p.conn.Close(context.Background())
}
