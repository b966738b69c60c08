// Package workspace связывает хранилище с внешними сервисами. Сессия — единственное место,
// где выполняется ввод-вывод: сначала запрос к бэкенду, затем действие в Store
// с каноническим результатом. При ошибке записи Store не меняется.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/collab/internal/composer"
	"github.com/collab/internal/filter"
	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/model"
	"github.com/collab/internal/presence"
	"github.com/collab/internal/store"
	"github.com/google/uuid"
)

var (
	ErrSendFailed     = errors.New("workspace: send failed")
	ErrUnknownChannel = errors.New("workspace: unknown channel")
	ErrUnknownMessage = errors.New("workspace: unknown message")
	ErrInvalidTag     = errors.New("workspace: tag not in vocabulary")
	ErrNoCall         = errors.New("workspace: no such call")
)

// Options — необязательные зависимости и параметры сессии.
type Options struct {
	Realtime   Subscriber
	Cache      FeedCache
	Suggester  Suggester
	PageSize   int
	Thresholds presence.Thresholds
	Now        func() time.Time
}

type Session struct {
	st   *store.Store
	be   Backend
	opts Options

	mu          sync.Mutex
	unsubscribe func()
}

func New(st *store.Store, be Backend, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Thresholds == (presence.Thresholds{}) {
		opts.Thresholds = presence.DefaultThresholds
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{st: st, be: be, opts: opts}
}

// Store возвращает хранилище сессии.
func (s *Session) Store() *store.Store { return s.st }

func (s *Session) userID() string { return s.st.Snapshot().UserID }

func (s *Session) now() time.Time { return s.opts.Now().UTC() }

func (s *Session) degraded(reason string) {
	s.st.Dispatch(store.ConnectivityChanged{Status: store.ConnectivityDegraded, Reason: reason})
}

// Load загружает ростер, каналы, сохранённые и личные переписки.
// Ошибка возвращается, только если каналы недоступны и в кеше их нет.
func (s *Session) Load(ctx context.Context) error {
	defer logger.DeferLogDuration("workspace.Load", time.Now())()
	uid := s.userID()

	if members, err := s.be.Members.ListActive(ctx); err != nil {
		logger.Errorf("workspace: members: %v", err)
	} else {
		s.st.Dispatch(store.MembersLoaded{Members: members})
	}

	active, archived, err := s.be.Channels.ListForUser(ctx, uid)
	switch {
	case err == nil:
		s.st.Dispatch(store.ChannelsLoaded{Active: active, Archived: archived})
		if s.opts.Cache != nil {
			if cerr := s.opts.Cache.PutChannels(uid, active, archived); cerr != nil {
				logger.Warnf("workspace: cache channels: %v", cerr)
			}
		}
	case s.opts.Cache != nil:
		snap, cerr := s.opts.Cache.Channels(uid)
		if cerr != nil {
			return fmt.Errorf("workspace.Load channels: %w", err)
		}
		logger.Warnf("workspace: channels from cache (%s): %v", snap.SavedAt.Format(time.RFC3339), err)
		s.st.Dispatch(store.ChannelsLoaded{Active: snap.Active, Archived: snap.Archived})
		s.degraded("channels: " + err.Error())
	default:
		return fmt.Errorf("workspace.Load channels: %w", err)
	}

	if saved, err := s.be.Saves.List(ctx, uid); err != nil {
		logger.Errorf("workspace: saved: %v", err)
	} else {
		s.st.Dispatch(store.SavedLoaded{Saved: saved})
	}

	if s.be.Directs != nil {
		if threads, err := s.be.Directs.ListThreads(ctx, uid); err != nil {
			logger.Errorf("workspace: direct threads: %v", err)
		} else {
			s.st.Dispatch(store.DirectThreadsLoaded{Threads: threads})
		}
	}
	return nil
}

// SelectChannel делает канал активным: переподписка, загрузка ленты, закреплённых и тем,
// отметка о прочтении. Сбой подписки переводит сессию в деградированный режим, но не
// мешает показать загруженную (или закешированную) ленту.
func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	defer logger.DeferLogDuration("workspace.SelectChannel", time.Now())()
	st := s.st.Dispatch(store.ChannelSelected{ChannelID: channelID})
	if st.ActiveChannelID != channelID {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}

	s.resubscribe(ctx, channelID)

	if err := s.LoadMessages(ctx, channelID); err != nil {
		return err
	}

	if pins, err := s.be.Pins.ListPinned(ctx, channelID); err != nil {
		logger.Errorf("workspace: pins channel=%s: %v", channelID, err)
	} else {
		s.st.Dispatch(store.PinsLoaded{ChannelID: channelID, Pins: pins})
	}
	if topics, err := s.be.Channels.Topics(ctx, channelID); err != nil {
		logger.Errorf("workspace: topics channel=%s: %v", channelID, err)
	} else {
		s.st.Dispatch(store.TopicsLoaded{ChannelID: channelID, Topics: topics})
	}

	s.st.Dispatch(store.ChannelRead{ChannelID: channelID})
	if err := s.be.Channels.MarkRead(ctx, channelID, s.userID(), s.now()); err != nil {
		logger.Errorf("workspace: mark read channel=%s: %v", channelID, err)
	}
	return nil
}

func (s *Session) resubscribe(ctx context.Context, channelID string) {
	if s.opts.Realtime == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if channelID == "" {
		return
	}
	unsub, err := s.opts.Realtime.Subscribe(ctx, channelID)
	if err != nil {
		// адаптер уже перевёл хранилище в degraded
		logger.Errorf("workspace: subscribe channel=%s: %v", channelID, err)
	}
	s.unsubscribe = unsub
}

// LoadMessages загружает последние сообщения канала. При ошибке показывается
// последний успешно загруженный снимок из кеша, а соединение помечается как деградированное.
func (s *Session) LoadMessages(ctx context.Context, channelID string) error {
	msgs, err := s.be.Messages.ListMessages(ctx, channelID, s.opts.PageSize)
	if err == nil {
		s.st.Dispatch(store.MessagesLoaded{ChannelID: channelID, Messages: msgs})
		if s.opts.Cache != nil {
			if cerr := s.opts.Cache.PutFeed(channelID, msgs); cerr != nil {
				logger.Warnf("workspace: cache feed channel=%s: %v", channelID, cerr)
			}
		}
		return nil
	}
	if s.opts.Cache != nil {
		if feed, cerr := s.opts.Cache.Feed(channelID); cerr == nil {
			logger.Warnf("workspace: feed channel=%s from cache (%s): %v", channelID, feed.SavedAt.Format(time.RFC3339), err)
			s.st.Dispatch(store.MessagesLoaded{ChannelID: channelID, Messages: feed.Messages})
			s.degraded("messages: " + err.Error())
			return nil
		}
	}
	return fmt.Errorf("workspace.LoadMessages %s: %w", channelID, err)
}

// OpenThread открывает тред и загружает ответы. Ответы, пришедшие во время загрузки,
// сливаются с загруженными; если пользователь успел открыть другой тред, результат отбрасывается.
func (s *Session) OpenThread(ctx context.Context, parentID string) error {
	s.st.Dispatch(store.ThreadOpened{ParentID: parentID})
	replies, err := s.be.Messages.ListReplies(ctx, parentID)
	if err != nil {
		return fmt.Errorf("workspace.OpenThread %s: %w", parentID, err)
	}
	s.st.Dispatch(store.ThreadRepliesLoaded{ParentID: parentID, Replies: replies})
	return nil
}

func (s *Session) CloseThread() {
	s.st.Dispatch(store.ThreadClosed{})
}

// Send реализует composer.SendFunc: создаёт сообщение (или правит при EditOf) и после
// подтверждения бэкенда добавляет каноническую версию в хранилище. Эхо той же записи
// из подписки ничего не меняет: вставка идемпотентна по идентификатору.
func (s *Session) Send(ctx context.Context, req composer.Request) error {
	if req.EditOf != "" {
		return s.Edit(ctx, req.EditOf, req.Body)
	}
	m := &model.Message{
		ID:          uuid.NewString(),
		ChannelID:   req.ChannelID,
		ParentID:    req.ParentID,
		AuthorID:    s.userID(),
		Body:        req.Body,
		Attachment:  req.Attachment,
		Attachments: req.Attachments,
		Topic:       req.Topic,
	}
	created, err := s.be.Messages.Create(ctx, m)
	metrics.Sends.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if created.IsReply() {
		s.st.Dispatch(store.ReplyAdded{Reply: *created})
	} else {
		s.st.Dispatch(store.MessageAdded{Message: *created})
	}
	return nil
}

// Edit меняет текст сообщения.
func (s *Session) Edit(ctx context.Context, messageID, body string) error {
	if err := s.be.Messages.UpdateBody(ctx, messageID, body, s.now()); err != nil {
		return fmt.Errorf("workspace.Edit %s: %w", messageID, err)
	}
	s.st.Dispatch(store.MessageEdited{MessageID: messageID, Body: body})
	return nil
}

// Delete мягко удаляет сообщение. Для ответа уменьшается счётчик родителя.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.be.Messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("workspace.Delete %s: %w", messageID, err)
	}
	s.st.Dispatch(store.MessageDeleted{MessageID: messageID, ParentID: m.Parent()})
	return nil
}

// message ищет сообщение в состоянии, иначе у бэкенда.
func (s *Session) message(ctx context.Context, id string) (model.Message, error) {
	if m, ok := s.st.Snapshot().FindMessage(id); ok {
		return m, nil
	}
	m, err := s.be.Messages.GetByID(ctx, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %s: %v", ErrUnknownMessage, id, err)
	}
	return *m, nil
}

// ToggleReaction переключает реакцию пользователя. Хранилище меняется только после
// подтверждения и только если его состояние расходится с ответом бэкенда.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	uid := s.userID()
	added, err := s.be.Reactions.Toggle(ctx, messageID, uid, emoji)
	if err != nil {
		return fmt.Errorf("workspace.ToggleReaction %s: %w", messageID, err)
	}
	m, ok := s.st.Snapshot().FindMessage(messageID)
	if !ok {
		return nil
	}
	has := false
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.Has(uid) {
			has = true
		}
	}
	if has != added {
		s.st.Dispatch(store.ReactionToggled{MessageID: messageID, Emoji: emoji, UserID: uid})
	}
	return nil
}

// TogglePin закрепляет сообщение в его канале или снимает закрепление.
func (s *Session) TogglePin(ctx context.Context, messageID string) error {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	at := s.now()
	if s.st.Snapshot().IsPinned(m.ChannelID, messageID) {
		err = s.be.Pins.Unpin(ctx, m.ChannelID, messageID)
	} else {
		err = s.be.Pins.Pin(ctx, model.PinnedMessage{ChannelID: m.ChannelID, MessageID: messageID, PinnedBy: s.userID(), PinnedAt: at})
	}
	if err != nil {
		return fmt.Errorf("workspace.TogglePin %s: %w", messageID, err)
	}
	s.st.Dispatch(store.PinToggled{ChannelID: m.ChannelID, MessageID: messageID, UserID: s.userID(), At: at})
	return nil
}

// ToggleSave добавляет сообщение в сохранённые или убирает оттуда.
func (s *Session) ToggleSave(ctx context.Context, messageID string) error {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	uid, at := s.userID(), s.now()
	if s.st.Snapshot().IsSaved(messageID) {
		err = s.be.Saves.Unsave(ctx, uid, messageID)
	} else {
		err = s.be.Saves.Save(ctx, uid, messageID, at)
	}
	if err != nil {
		return fmt.Errorf("workspace.ToggleSave %s: %w", messageID, err)
	}
	s.st.Dispatch(store.SaveToggled{MessageID: messageID, ChannelID: m.ChannelID, At: at})
	return nil
}

// AddTag помечает сообщение тегом из словаря.
func (s *Session) AddTag(ctx context.Context, messageID, tag string) error {
	if !model.ValidTag(tag) {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	if err := s.be.Tags.Add(ctx, messageID, tag); err != nil {
		return fmt.Errorf("workspace.AddTag %s: %w", messageID, err)
	}
	s.st.Dispatch(store.TagAdded{MessageID: messageID, Tag: tag})
	return nil
}

func (s *Session) RemoveTag(ctx context.Context, messageID, tag string) error {
	if err := s.be.Tags.Remove(ctx, messageID, tag); err != nil {
		return fmt.Errorf("workspace.RemoveTag %s: %w", messageID, err)
	}
	s.st.Dispatch(store.TagRemoved{MessageID: messageID, Tag: tag})
	return nil
}

// Archive переносит канал в архив. Если он был активным, сессия переключается на
// канал, выбранный хранилищем (или отписывается, если каналов не осталось).
func (s *Session) Archive(ctx context.Context, channelID string) error {
	if err := s.be.Channels.SetArchived(ctx, channelID, true); err != nil {
		return fmt.Errorf("workspace.Archive %s: %w", channelID, err)
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.DropFeed(channelID); err != nil {
			logger.Warnf("workspace: cache drop channel=%s: %v", channelID, err)
		}
	}
	before := s.st.Snapshot().ActiveChannelID
	after := s.st.Dispatch(store.ChannelArchived{ChannelID: channelID}).ActiveChannelID
	if before == after {
		return nil
	}
	if after == "" {
		s.resubscribe(ctx, "")
		return nil
	}
	return s.SelectChannel(ctx, after)
}

// Restore возвращает канал из архива.
func (s *Session) Restore(ctx context.Context, channelID string) error {
	if err := s.be.Channels.SetArchived(ctx, channelID, false); err != nil {
		return fmt.Errorf("workspace.Restore %s: %w", channelID, err)
	}
	s.st.Dispatch(store.ChannelRestored{ChannelID: channelID})
	return nil
}

// SetFavorite и SetMuted меняют флаги канала для пользователя.
func (s *Session) SetFavorite(ctx context.Context, channelID string, v bool) error {
	return s.setFlags(ctx, channelID, &v, nil)
}

func (s *Session) SetMuted(ctx context.Context, channelID string, v bool) error {
	return s.setFlags(ctx, channelID, nil, &v)
}

func (s *Session) setFlags(ctx context.Context, channelID string, favorite, muted *bool) error {
	if err := s.be.Channels.SetFlags(ctx, channelID, s.userID(), favorite, muted); err != nil {
		return fmt.Errorf("workspace.SetFlags %s: %w", channelID, err)
	}
	s.st.Dispatch(store.ChannelFlagsSet{ChannelID: channelID, Favorite: favorite, Muted: muted})
	return nil
}

// Фильтры — чисто локальные действия.

func (s *Session) Search(q string)               { s.st.Dispatch(store.FilterQuerySet{Query: q}) }
func (s *Session) SetCategory(c filter.Category) { s.st.Dispatch(store.FilterCategorySet{Category: c}) }
func (s *Session) SetCriteria(c filter.Criteria) { s.st.Dispatch(store.FilterCriteriaSet{Criteria: c}) }
func (s *Session) ClearFilters()                 { s.st.Dispatch(store.FiltersCleared{}) }
func (s *Session) SelectTopic(topic string)      { s.st.Dispatch(store.TopicSelected{Topic: topic}) }
func (s *Session) Visible() []model.Message      { return s.st.Snapshot().Visible() }

// Presence — отображаемый статус участника.
func (s *Session) Presence(userID string) model.PresenceStatus {
	th := s.opts.Thresholds
	return s.st.Snapshot().PresenceOf(userID, s.opts.Now(), func(rec model.PresenceRecord, now time.Time) model.PresenceStatus {
		return th.Classify(rec, now)
	})
}

// OpenDirect находит или создаёт личную переписку с участниками и делает её активной.
func (s *Session) OpenDirect(ctx context.Context, participantIDs ...string) (string, error) {
	uid := s.userID()
	ids := append([]string{uid}, participantIDs...)
	sort.Strings(ids)
	ids = dedupSorted(ids)

	th, err := s.be.Directs.GetOrCreateThread(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("workspace.OpenDirect: %w", err)
	}
	msgs, err := s.be.Directs.ListMessages(ctx, th.ID, s.opts.PageSize)
	if err != nil {
		return "", fmt.Errorf("workspace.OpenDirect messages: %w", err)
	}
	thread := *th
	thread.Messages = msgs

	threads := s.st.Snapshot().DirectThreads
	next := make([]model.DirectThread, 0, len(threads)+1)
	replaced := false
	for _, d := range threads {
		if d.ID == thread.ID {
			next = append(next, thread)
			replaced = true
			continue
		}
		next = append(next, d)
	}
	if !replaced {
		next = append(next, thread)
	}
	s.st.Dispatch(store.DirectThreadsLoaded{Threads: next})
	s.st.Dispatch(store.DirectThreadOpened{ThreadID: thread.ID})
	if err := s.be.Directs.MarkRead(ctx, thread.ID, uid, s.now()); err != nil {
		logger.Errorf("workspace: mark read direct=%s: %v", thread.ID, err)
	}
	return thread.ID, nil
}

func dedupSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if id == "" || (i > 0 && id == ids[i-1]) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s *Session) CloseDirect() {
	s.st.Dispatch(store.DirectThreadClosed{})
}

// SendDirect отправляет сообщение в личную переписку.
func (s *Session) SendDirect(ctx context.Context, threadID, body string) error {
	m := &model.Message{ID: uuid.NewString(), AuthorID: s.userID(), Body: body}
	created, err := s.be.Directs.AddMessage(ctx, threadID, m)
	metrics.Sends.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.st.Dispatch(store.DirectMessageAdded{ThreadID: threadID, Message: *created})
	return nil
}

// StartCall начинает звонок в канале или переписке scopeID.
func (s *Session) StartCall(scopeID string) model.CallSession {
	call := model.CallSession{
		ID:           uuid.NewString(),
		ScopeID:      scopeID,
		StartedBy:    s.userID(),
		Participants: []string{s.userID()},
		Status:       model.CallStatusRinging,
		StartedAt:    s.now(),
	}
	s.st.Dispatch(store.CallStarted{Call: call})
	return call
}

func (s *Session) JoinCall(callID, userID string) error {
	if c := s.st.Snapshot().Call; c == nil || c.ID != callID {
		return ErrNoCall
	}
	s.st.Dispatch(store.CallJoined{CallID: callID, UserID: userID})
	return nil
}

func (s *Session) EndCall(callID string) error {
	if c := s.st.Snapshot().Call; c == nil || c.ID != callID {
		return ErrNoCall
	}
	s.st.Dispatch(store.CallEnded{CallID: callID, At: s.now()})
	return nil
}

// Suggest — подсказки по тексту. Без сервиса возвращает nil.
func (s *Session) Suggest(ctx context.Context, text string) []model.Suggestion {
	if s.opts.Suggester == nil {
		return nil
	}
	return s.opts.Suggester.Suggest(ctx, text)
}

// Close снимает подписку на обновления.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.opts.Realtime != nil {
		s.opts.Realtime.Close()
	}
}
