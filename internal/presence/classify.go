// Package presence сообщает о живости клиента и выводит статус остальных участников
// из давности их последней активности.
package presence

import (
	"time"

	"github.com/collab/internal/model"
)

// Thresholds — границы классификации по давности последней активности.
type Thresholds struct {
	AwayAfter    time.Duration
	OfflineAfter time.Duration
}

// DefaultThresholds: до 5 минут — сохранённое состояние, до 15 — away, дальше — offline.
var DefaultThresholds = Thresholds{AwayAfter: 5 * time.Minute, OfflineAfter: 15 * time.Minute}

// Classify — отображаемый статус записи на момент now с порогами по умолчанию.
func Classify(rec model.PresenceRecord, now time.Time) model.PresenceStatus {
	return DefaultThresholds.Classify(rec, now)
}

// Classify вычисляет статус только из времени: давняя активность перекрывает сохранённое состояние.
// Наблюдение чужой неактивности ничего не записывает.
func (t Thresholds) Classify(rec model.PresenceRecord, now time.Time) model.PresenceStatus {
	elapsed := now.Sub(rec.LastActiveAt)
	switch {
	case elapsed > t.OfflineAfter:
		return model.PresenceOffline
	case elapsed > t.AwayAfter:
		return model.PresenceAway
	}
	if rec.State == "" {
		return model.PresenceOnline
	}
	return rec.State
}
