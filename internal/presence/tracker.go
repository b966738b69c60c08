package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/model"
	"github.com/collab/internal/store"
	"golang.org/x/sync/errgroup"
)

// Service — удалённый сервис присутствия.
type Service interface {
	UpsertPresence(ctx context.Context, rec model.PresenceRecord) error
	FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error)
}

// StateStore — часть хранилища, нужная трекеру.
type StateStore interface {
	Dispatch(a store.Action) store.State
	Snapshot() store.State
}

// Config — периоды фоновых задач.
type Config struct {
	UserID            string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	// Now подменяется в тестах.
	Now func() time.Time
}

// Tracker раз в HeartbeatInterval сообщает, что клиент жив, и раз в PollInterval
// забирает записи всех известных участников в хранилище.
type Tracker struct {
	svc Service
	st  StateStore
	cfg Config
}

func NewTracker(svc Service, st StateStore, cfg Config) *Tracker {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{svc: svc, st: st, cfg: cfg}
}

// Run запускает heartbeat и опрос и блокируется до отмены ctx.
// Ошибки отдельных тиков логируются и не останавливают задачи.
func (t *Tracker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.loop(ctx, t.cfg.HeartbeatInterval, func(ctx context.Context) {
			if err := t.Heartbeat(ctx); err != nil {
				logger.Errorf("presence: heartbeat: %v", err)
			}
		})
	})
	g.Go(func() error {
		return t.loop(ctx, t.cfg.PollInterval, func(ctx context.Context) {
			if _, err := t.Poll(ctx); err != nil {
				logger.Errorf("presence: poll: %v", err)
			}
		})
	})
	return g.Wait()
}

// loop выполняет tick сразу и затем по таймеру, пока ctx не отменён.
func (t *Tracker) loop(ctx context.Context, every time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Heartbeat записывает (user, online, now).
func (t *Tracker) Heartbeat(ctx context.Context) error {
	rec := model.PresenceRecord{UserID: t.cfg.UserID, State: model.PresenceOnline, LastActiveAt: t.cfg.Now().UTC()}
	err := t.svc.UpsertPresence(ctx, rec)
	metrics.PresenceHeartbeats.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("presence.Heartbeat: %w", err)
	}
	return nil
}

// Poll забирает записи всех известных участников и кладёт их в хранилище.
// Пока участники неизвестны, опрос ничего не делает и возвращает 0.
func (t *Tracker) Poll(ctx context.Context) (int, error) {
	members := t.st.Snapshot().Members
	if len(members) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	recs, err := t.svc.FetchPresence(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("presence.Poll: %w", err)
	}
	out := make([]model.PresenceRecord, 0, len(recs))
	for _, id := range ids {
		if rec, ok := recs[id]; ok {
			rec.UserID = id
			out = append(out, rec)
		}
	}
	t.st.Dispatch(store.PresenceSnapshot{Records: out})
	return len(out), nil
}
