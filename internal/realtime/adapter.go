// Package realtime держит ровно одну живую подписку на события активного канала
// и переводит входящие уведомления в действия хранилища.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/store"
)

// ErrSubscribe — подписку установить не удалось; канал остаётся на последнем загруженном состоянии.
var ErrSubscribe = errors.New("realtime: subscribe failed")

// Dispatcher — хранилище, принимающее действия.
type Dispatcher interface {
	Dispatch(a store.Action) store.State
}

type subscription struct {
	channelID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Adapter гарантирует не более одной живой подписки: Subscribe сначала
// останавливает предыдущую и дожидается её завершения.
type Adapter struct {
	stream Stream
	st     Dispatcher

	mu  sync.Mutex
	cur *subscription
}

func NewAdapter(stream Stream, st Dispatcher) *Adapter {
	return &Adapter{stream: stream, st: st}
}

// Subscribe подписывается на канал и возвращает функцию отписки.
// При ошибке хранилище получает ConnectivityChanged{Degraded}, а ошибка оборачивает ErrSubscribe.
func (a *Adapter) Subscribe(ctx context.Context, channelID string) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()

	sub, err := a.stream.Open(ctx, channelID)
	if err != nil {
		logger.Errorf("realtime: subscribe channel=%s: %v", channelID, err)
		a.st.Dispatch(store.ConnectivityChanged{Status: store.ConnectivityDegraded, Reason: err.Error()})
		return func() {}, fmt.Errorf("%w: %v", ErrSubscribe, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{channelID: channelID, cancel: cancel, done: make(chan struct{})}
	a.cur = s
	a.st.Dispatch(store.ConnectivityChanged{Status: store.ConnectivityLive})

	go a.pump(runCtx, s, sub)

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.cur == s {
			a.stopLocked()
		}
	}, nil
}

// Active возвращает канал живой подписки или "".
func (a *Adapter) Active() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return ""
	}
	return a.cur.channelID
}

// Close останавливает текущую подписку.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if a.cur == nil {
		return
	}
	a.cur.cancel()
	<-a.cur.done
	a.cur = nil
}

func (a *Adapter) pump(ctx context.Context, s *subscription, sub Subscription) {
	defer close(s.done)
	defer func() {
		if err := sub.Close(); err != nil {
			logger.Errorf("realtime: close channel=%s: %v", s.channelID, err)
		}
	}()
	for {
		ev, err := sub.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Errorf("realtime: stream channel=%s: %v", s.channelID, err)
			a.st.Dispatch(store.ConnectivityChanged{Status: store.ConnectivityDegraded, Reason: err.Error()})
			return
		}
		if ev.ChannelID != s.channelID {
			continue
		}
		metrics.RealtimeEvents.WithLabelValues(string(ev.Type)).Inc()
		if act := Route(ev); act != nil {
			a.st.Dispatch(act)
		}
	}
}

// Route переводит событие в действие хранилища. Ответы всегда идут как ReplyAdded:
// хранилище учитывает их в счётчике родителя и показывает только в открытом треде.
func Route(ev Event) store.Action {
	m := ev.Message
	switch ev.Type {
	case EventMessageCreated:
		if m.IsReply() {
			return store.ReplyAdded{Reply: m}
		}
		return store.MessageAdded{Message: m}
	case EventMessageUpdated:
		if m.IsDeleted {
			return store.MessageDeleted{MessageID: m.ID, ParentID: m.Parent()}
		}
		return store.MessageEdited{MessageID: m.ID, Body: m.Body}
	}
	return nil
}
