package storage

import (
	"context"

	"github.com/collab/internal/model"
)

// PresenceStore — сервис присутствия: запись с побеждающей последней отметкой и пакетное чтение.
// Реализации: redis.Client, memory.Client (для -dev без Redis), pgstore.Client (таблица presence).
type PresenceStore interface {
	UpsertPresence(ctx context.Context, rec model.PresenceRecord) error
	FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error)
	Close() error
}
