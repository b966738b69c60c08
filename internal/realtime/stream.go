package realtime

import (
	"context"
	"errors"
)

// ErrStreamClosed возвращается Next после закрытия подписки.
var ErrStreamClosed = errors.New("realtime: stream closed")

// Stream — источник событий, фильтруемый по каналу.
type Stream interface {
	// Open устанавливает подписку на события канала. Ошибка — подписка не установлена.
	Open(ctx context.Context, channelID string) (Subscription, error)
}

// Subscription выдаёт события по одному в порядке бэкенда.
type Subscription interface {
	// Next блокируется до следующего события, отмены ctx или обрыва.
	Next(ctx context.Context) (Event, error)
	Close() error
}
