package realtime

import (
	"github.com/collab/internal/model"
)

type EventType string

const (
	EventMessageCreated EventType = "message_created"
	EventMessageUpdated EventType = "message_updated"
	EventSubscribed     EventType = "subscribed"
	EventError          EventType = "error"
)

// Notification — полезная нагрузка pg_notify из триггера notify_workspace_event.
// Содержит только ключи строки; сообщение целиком читается отдельно.
type Notification struct {
	Op        string  `json:"op"`
	Table     string  `json:"table"`
	ChannelID string  `json:"channel_id"`
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
}

// Type переводит операцию строки в тип события.
func (n Notification) Type() EventType {
	if n.Op == "insert" {
		return EventMessageCreated
	}
	return EventMessageUpdated
}

// Event — изменение сообщения в канале в порядке, в котором его выдал бэкенд.
type Event struct {
	Type      EventType     `json:"type"`
	ChannelID string        `json:"channel_id"`
	Message   model.Message `json:"message"`
}

// Frame — кадр websocket между шлюзом и клиентом.
type Frame struct {
	Type      EventType      `json:"type"`
	ChannelID string         `json:"channel_id,omitempty"`
	Message   *model.Message `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// FrameOf упаковывает событие в кадр.
func FrameOf(ev Event) Frame {
	m := ev.Message
	return Frame{Type: ev.Type, ChannelID: ev.ChannelID, Message: &m}
}
