package workspace

import (
	"context"
	"time"

	"github.com/collab/internal/cache"
	"github.com/collab/internal/model"
)

// Интерфейсы внешних сервисов в том объёме, который нужен сессии.
// Реализации — repository.*, realtime.Adapter, cache.Cache, classify.Client.

type Messages interface {
	Create(ctx context.Context, m *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]model.Message, error)
	ListReplies(ctx context.Context, parentID string) ([]model.Message, error)
	UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string) error
}

type Channels interface {
	ListForUser(ctx context.Context, userID string) (active, archived []model.Channel, err error)
	SetArchived(ctx context.Context, channelID string, archived bool) error
	SetFlags(ctx context.Context, channelID, userID string, favorite, muted *bool) error
	MarkRead(ctx context.Context, channelID, userID string, t time.Time) error
	Topics(ctx context.Context, channelID string) ([]string, error)
}

type Members interface {
	ListActive(ctx context.Context) ([]model.Member, error)
}

type Reactions interface {
	Toggle(ctx context.Context, messageID, userID, emoji string) (added bool, err error)
}

type Tags interface {
	Add(ctx context.Context, messageID, tag string) error
	Remove(ctx context.Context, messageID, tag string) error
}

type Pins interface {
	Pin(ctx context.Context, p model.PinnedMessage) error
	Unpin(ctx context.Context, channelID, messageID string) error
	ListPinned(ctx context.Context, channelID string) ([]model.PinnedMessage, error)
}

type Saves interface {
	Save(ctx context.Context, userID, messageID string, at time.Time) error
	Unsave(ctx context.Context, userID, messageID string) error
	List(ctx context.Context, userID string) ([]model.SavedMessage, error)
}

type Directs interface {
	ListThreads(ctx context.Context, userID string) ([]model.DirectThread, error)
	GetOrCreateThread(ctx context.Context, participantIDs []string) (*model.DirectThread, error)
	AddMessage(ctx context.Context, threadID string, m *model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error)
	MarkRead(ctx context.Context, threadID, userID string, t time.Time) error
}

// Backend — сервис хранения.
type Backend struct {
	Messages  Messages
	Channels  Channels
	Members   Members
	Reactions Reactions
	Tags      Tags
	Pins      Pins
	Saves     Saves
	Directs   Directs
}

// Subscriber — подписка на живые обновления канала (realtime.Adapter).
type Subscriber interface {
	Subscribe(ctx context.Context, channelID string) (func(), error)
	Close()
}

// FeedCache — снимки последних успешных загрузок (cache.Cache).
type FeedCache interface {
	PutFeed(channelID string, msgs []model.Message) error
	Feed(channelID string) (cache.Feed, error)
	PutChannels(userID string, active, archived []model.Channel) error
	Channels(userID string) (cache.Channels, error)
	DropFeed(channelID string) error
}

// Suggester — необязательный сервис подсказок (classify.Client).
type Suggester interface {
	Suggest(ctx context.Context, text string) []model.Suggestion
}
