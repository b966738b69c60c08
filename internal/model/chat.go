package model

import "time"

// Channel — именованная область переписки внутри команды.
// Favorite/Muted/UnreadCount относятся к просматривающему пользователю.
type Channel struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	TeamID         string    `json:"team_id"`
	UnreadCount    int       `json:"unread_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Favorite       bool      `json:"favorite"`
	Muted          bool      `json:"muted"`
	Archived       bool      `json:"archived"`
}

// DirectThread — личная переписка: набор участников и упорядоченный список сообщений.
// Структурно параллельна Channel/Message, но без тредов и тегов.
type DirectThread struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	Messages       []Message `json:"messages,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	UnreadCount    int       `json:"unread_count"`
}

// HasParticipant сообщает, входит ли userID в участников переписки.
func (d *DirectThread) HasParticipant(userID string) bool {
	for _, id := range d.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// CallSession — состояние звонка в канале или личной переписке.
type CallSession struct {
	ID           string     `json:"id"`
	ScopeID      string     `json:"scope_id"`
	StartedBy    string     `json:"started_by"`
	Participants []string   `json:"participants"`
	Status       CallStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}
