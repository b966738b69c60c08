package model

import "time"

// Member — запись каталога участников: источник для упоминаний и присутствия.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord — сырое состояние, сообщённое пользователем, и время последней активности.
// Отображаемый статус вычисляется из давности LastActiveAt (см. presence.Classify).
type PresenceRecord struct {
	UserID       string         `json:"user_id"`
	State        PresenceStatus `json:"state"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// Suggestion — подсказка сервиса классификации.
type Suggestion struct {
	Kind  string  `json:"kind"`
	Text  string  `json:"text"`
	Score float64 `json:"score,omitempty"`
}
