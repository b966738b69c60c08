package store

import (
	"time"

	"github.com/collab/internal/filter"
	"github.com/collab/internal/model"
)

// Connectivity — состояние живого канала обновлений.
type Connectivity string

const (
	ConnectivityLive     Connectivity = "live"
	ConnectivityDegraded Connectivity = "degraded"
)

// ThreadView — открытый тред. ParentID == "" означает, что тред не открыт.
type ThreadView struct {
	ParentID string
	Replies  []model.Message
	Loading  bool
}

// Open сообщает, открыт ли тред.
func (t ThreadView) Open() bool { return t.ParentID != "" }

// Filters — текущие фильтры ленты.
type Filters struct {
	Query    string
	Category filter.Category
	Criteria filter.Criteria
	Topic    string
}

// State — снимок состояния. Редьюсер никогда не изменяет срезы и карты снимка на месте,
// поэтому снимок можно читать без копирования после выхода из Dispatch.
type State struct {
	UserID string

	Channels        []model.Channel
	Archived        []model.Channel
	ActiveChannelID string

	// Feeds — ленты верхнего уровня по каналам, в порядке поступления.
	Feeds  map[string][]model.Message
	Thread ThreadView
	// CountedReplies — ответы, уже учтённые в ReplyCount родителя (parentID → replyID).
	// true — ответ учтён и не удалён, false — учтён и уже вычтен при удалении.
	CountedReplies map[string]map[string]bool

	Pins  map[string][]model.PinnedMessage
	Saved []model.SavedMessage

	Members  []model.Member
	Presence map[string]model.PresenceRecord

	Topics  map[string][]string
	Filters Filters

	DirectThreads  []model.DirectThread
	ActiveDirectID string

	Call *model.CallSession

	Connectivity Connectivity
	// ConnectivityReason — причина деградации для индикатора.
	ConnectivityReason string
}

// NewState возвращает пустое состояние для пользователя userID.
func NewState(userID string) State {
	return State{
		UserID:       userID,
		Connectivity: ConnectivityLive,
	}
}

// ActiveChannel возвращает активный канал.
func (s State) ActiveChannel() (model.Channel, bool) {
	for _, c := range s.Channels {
		if c.ID == s.ActiveChannelID {
			return c, true
		}
	}
	return model.Channel{}, false
}

// Feed возвращает ленту канала.
func (s State) Feed(channelID string) []model.Message {
	return s.Feeds[channelID]
}

// ActiveFeed возвращает ленту активного канала.
func (s State) ActiveFeed() []model.Message {
	return s.Feeds[s.ActiveChannelID]
}

// FindMessage ищет сообщение в лентах и в открытом треде.
func (s State) FindMessage(id string) (model.Message, bool) {
	for _, feed := range s.Feeds {
		for _, m := range feed {
			if m.ID == id {
				return m, true
			}
		}
	}
	for _, m := range s.Thread.Replies {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// IsPinned сообщает, закреплено ли сообщение в канале.
func (s State) IsPinned(channelID, messageID string) bool {
	for _, p := range s.Pins[channelID] {
		if p.MessageID == messageID {
			return true
		}
	}
	return false
}

// IsSaved сообщает, сохранено ли сообщение пользователем.
func (s State) IsSaved(messageID string) bool {
	for _, sv := range s.Saved {
		if sv.MessageID == messageID {
			return true
		}
	}
	return false
}

// SavedSet — сохранённые сообщения в виде множества для фильтра.
func (s State) SavedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Saved))
	for _, sv := range s.Saved {
		out[sv.MessageID] = struct{}{}
	}
	return out
}

// Member возвращает участника по идентификатору.
func (s State) Member(id string) (model.Member, bool) {
	for _, m := range s.Members {
		if m.ID == id {
			return m, true
		}
	}
	return model.Member{}, false
}

// DirectThread возвращает личную переписку по идентификатору.
func (s State) DirectThread(id string) (model.DirectThread, bool) {
	for _, d := range s.DirectThreads {
		if d.ID == id {
			return d, true
		}
	}
	return model.DirectThread{}, false
}

// Visible — лента активного канала после всех фильтров.
func (s State) Visible() []model.Message {
	viewer, _ := s.Member(s.UserID)
	if viewer.ID == "" {
		viewer.ID = s.UserID
	}
	q := filter.Query{
		Text:     s.Filters.Query,
		Category: s.Filters.Category,
		Criteria: s.Filters.Criteria,
		Topic:    s.Filters.Topic,
	}
	return filter.Apply(s.ActiveFeed(), q, filter.Context{Viewer: viewer, Saved: s.SavedSet()})
}

// Classifier вычисляет отображаемый статус по сырой записи; см. presence.Classify.
type Classifier func(rec model.PresenceRecord, now time.Time) model.PresenceStatus

// PresenceOf — отображаемый статус участника на момент now. Нет записи — offline.
func (s State) PresenceOf(userID string, now time.Time, classify Classifier) model.PresenceStatus {
	rec, ok := s.Presence[userID]
	if !ok {
		return model.PresenceOffline
	}
	return classify(rec, now)
}
