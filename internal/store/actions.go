package store

import (
	"time"

	"github.com/collab/internal/filter"
	"github.com/collab/internal/model"
)

// Action — закрытый набор переходов состояния. Реализации есть только в этом пакете.
type Action interface {
	// Kind — стабильное имя действия для логов и метрик.
	Kind() string
	action()
}

type (
	// ChannelsLoaded заменяет списки активных и архивных каналов.
	ChannelsLoaded struct {
		Active   []model.Channel
		Archived []model.Channel
	}
	// ChannelSelected переключает активный канал и безусловно закрывает тред.
	ChannelSelected struct{ ChannelID string }
	// ChannelArchived переносит канал в архив.
	ChannelArchived struct{ ChannelID string }
	// ChannelRestored возвращает канал из архива.
	ChannelRestored struct{ ChannelID string }
	// ChannelFlagsSet меняет избранное/без звука; nil — не менять.
	ChannelFlagsSet struct {
		ChannelID string
		Favorite  *bool
		Muted     *bool
	}
	// ChannelRead обнуляет счётчик непрочитанных.
	ChannelRead struct{ ChannelID string }

	// MessagesLoaded заменяет ленту канала результатом загрузки.
	MessagesLoaded struct {
		ChannelID string
		Messages  []model.Message
	}
	// MessageAdded добавляет сообщение. Ответы маршрутизируются как ReplyAdded.
	// Повторная вставка того же идентификатора ничего не меняет.
	MessageAdded struct{ Message model.Message }
	// MessageEdited меняет текст и ставит признак редактирования.
	MessageEdited struct {
		MessageID string
		Body      string
	}
	// MessageDeleted помечает сообщение удалённым. ParentID задаётся для ответов.
	MessageDeleted struct {
		MessageID string
		ParentID  string
	}

	// ThreadOpened открывает тред; загрузку ответов выполняет вызывающая сторона.
	ThreadOpened struct{ ParentID string }
	// ThreadRepliesLoaded сливает загруженные ответы с уже полученными. Для неактуального треда игнорируется.
	ThreadRepliesLoaded struct {
		ParentID string
		Replies  []model.Message
	}
	// ThreadClosed закрывает тред.
	ThreadClosed struct{}
	// ReplyAdded учитывает ответ в счётчике родителя и добавляет его в тред, если тот открыт.
	ReplyAdded struct{ Reply model.Message }

	// ReactionToggled переключает реакцию пользователя.
	ReactionToggled struct {
		MessageID string
		Emoji     string
		UserID    string
	}
	// TagAdded помечает сообщение тегом из словаря.
	TagAdded struct {
		MessageID string
		Tag       string
	}
	// TagRemoved снимает тег.
	TagRemoved struct {
		MessageID string
		Tag       string
	}
	// PinToggled закрепляет или открепляет сообщение в канале.
	PinToggled struct {
		ChannelID string
		MessageID string
		UserID    string
		At        time.Time
	}
	// PinsLoaded заменяет список закреплённых сообщений канала.
	PinsLoaded struct {
		ChannelID string
		Pins      []model.PinnedMessage
	}
	// SaveToggled сохраняет или убирает сообщение из сохранённых.
	SaveToggled struct {
		MessageID string
		ChannelID string
		At        time.Time
	}
	// SavedLoaded заменяет список сохранённых.
	SavedLoaded struct{ Saved []model.SavedMessage }

	// MembersLoaded заменяет ростер.
	MembersLoaded struct{ Members []model.Member }
	// PresenceSnapshot сливает свежие записи присутствия.
	PresenceSnapshot struct{ Records []model.PresenceRecord }

	// FilterQuerySet задаёт текст поиска.
	FilterQuerySet struct{ Query string }
	// FilterCategorySet задаёт категорию.
	FilterCategorySet struct{ Category filter.Category }
	// FilterCriteriaSet задаёт структурированные условия.
	FilterCriteriaSet struct{ Criteria filter.Criteria }
	// FiltersCleared сбрасывает поиск, категорию и условия (тема сохраняется).
	FiltersCleared struct{}
	// TopicsLoaded задаёт список тем канала.
	TopicsLoaded struct {
		ChannelID string
		Topics    []string
	}
	// TopicSelected выбирает тему.
	TopicSelected struct{ Topic string }

	// DirectThreadsLoaded заменяет список личных переписок.
	DirectThreadsLoaded struct{ Threads []model.DirectThread }
	// DirectThreadOpened делает переписку активной.
	DirectThreadOpened struct{ ThreadID string }
	// DirectThreadClosed закрывает активную переписку.
	DirectThreadClosed struct{}
	// DirectMessageAdded добавляет сообщение в переписку.
	DirectMessageAdded struct {
		ThreadID string
		Message  model.Message
	}

	// CallStarted начинает звонок.
	CallStarted struct{ Call model.CallSession }
	// CallJoined добавляет участника в звонок.
	CallJoined struct {
		CallID string
		UserID string
	}
	// CallEnded завершает звонок.
	CallEnded struct {
		CallID string
		At     time.Time
	}

	// ConnectivityChanged отражает состояние подписки на обновления.
	ConnectivityChanged struct {
		Status Connectivity
		Reason string
	}
)

func (ChannelsLoaded) Kind() string      { return "channels_loaded" }
func (ChannelSelected) Kind() string     { return "channel_selected" }
func (ChannelArchived) Kind() string     { return "channel_archived" }
func (ChannelRestored) Kind() string     { return "channel_restored" }
func (ChannelFlagsSet) Kind() string     { return "channel_flags_set" }
func (ChannelRead) Kind() string         { return "channel_read" }
func (MessagesLoaded) Kind() string      { return "messages_loaded" }
func (MessageAdded) Kind() string        { return "message_added" }
func (MessageEdited) Kind() string       { return "message_edited" }
func (MessageDeleted) Kind() string      { return "message_deleted" }
func (ThreadOpened) Kind() string        { return "thread_opened" }
func (ThreadRepliesLoaded) Kind() string { return "thread_replies_loaded" }
func (ThreadClosed) Kind() string        { return "thread_closed" }
func (ReplyAdded) Kind() string          { return "reply_added" }
func (ReactionToggled) Kind() string     { return "reaction_toggled" }
func (TagAdded) Kind() string            { return "tag_added" }
func (TagRemoved) Kind() string          { return "tag_removed" }
func (PinToggled) Kind() string          { return "pin_toggled" }
func (PinsLoaded) Kind() string          { return "pins_loaded" }
func (SaveToggled) Kind() string         { return "save_toggled" }
func (SavedLoaded) Kind() string         { return "saved_loaded" }
func (MembersLoaded) Kind() string       { return "members_loaded" }
func (PresenceSnapshot) Kind() string    { return "presence_snapshot" }
func (FilterQuerySet) Kind() string      { return "filter_query_set" }
func (FilterCategorySet) Kind() string   { return "filter_category_set" }
func (FilterCriteriaSet) Kind() string   { return "filter_criteria_set" }
func (FiltersCleared) Kind() string      { return "filters_cleared" }
func (TopicsLoaded) Kind() string        { return "topics_loaded" }
func (TopicSelected) Kind() string       { return "topic_selected" }
func (DirectThreadsLoaded) Kind() string { return "direct_threads_loaded" }
func (DirectThreadOpened) Kind() string  { return "direct_thread_opened" }
func (DirectThreadClosed) Kind() string  { return "direct_thread_closed" }
func (DirectMessageAdded) Kind() string  { return "direct_message_added" }
func (CallStarted) Kind() string         { return "call_started" }
func (CallJoined) Kind() string          { return "call_joined" }
func (CallEnded) Kind() string           { return "call_ended" }
func (ConnectivityChanged) Kind() string { return "connectivity_changed" }

func (ChannelsLoaded) action()      {}
func (ChannelSelected) action()     {}
func (ChannelArchived) action()     {}
func (ChannelRestored) action()     {}
func (ChannelFlagsSet) action()     {}
func (ChannelRead) action()         {}
func (MessagesLoaded) action()      {}
func (MessageAdded) action()        {}
func (MessageEdited) action()       {}
func (MessageDeleted) action()      {}
func (ThreadOpened) action()        {}
func (ThreadRepliesLoaded) action() {}
func (ThreadClosed) action()        {}
func (ReplyAdded) action()          {}
func (ReactionToggled) action()     {}
func (TagAdded) action()            {}
func (TagRemoved) action()          {}
func (PinToggled) action()          {}
func (PinsLoaded) action()          {}
func (SaveToggled) action()         {}
func (SavedLoaded) action()         {}
func (MembersLoaded) action()       {}
func (PresenceSnapshot) action()    {}
func (FilterQuerySet) action()      {}
func (FilterCategorySet) action()   {}
func (FilterCriteriaSet) action()   {}
func (FiltersCleared) action()      {}
func (TopicsLoaded) action()        {}
func (TopicSelected) action()       {}
func (DirectThreadsLoaded) action() {}
func (DirectThreadOpened) action()  {}
func (DirectThreadClosed) action()  {}
func (DirectMessageAdded) action()  {}
func (CallStarted) action()         {}
func (CallJoined) action()          {}
func (CallEnded) action()           {}
func (ConnectivityChanged) action() {}
