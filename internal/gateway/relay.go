package gateway

import (
	"context"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/realtime"
)

const maxRelayBackoff = 30 * time.Second

// Relay переносит события из потока бэкенда (все каналы) в Hub.
type Relay struct {
	stream  realtime.Stream
	hub     *Hub
	backoff time.Duration
}

func NewRelay(stream realtime.Stream, hub *Hub) *Relay {
	return &Relay{stream: stream, hub: hub, backoff: time.Second}
}

// Run работает до отмены ctx. После ошибки потока переподключается; пауза растёт,
// пока подписка не удаётся, и сбрасывается после успешного подключения.
func (r *Relay) Run(ctx context.Context) error {
	delay := r.backoff
	for {
		opened, err := r.pump(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if opened {
			delay = r.backoff
		}
		logger.Errorf("gateway relay: %v (retry in %s)", err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if !opened && delay < maxRelayBackoff {
			delay *= 2
		}
	}
}

func (r *Relay) pump(ctx context.Context) (bool, error) {
	sub, err := r.stream.Open(ctx, "")
	if err != nil {
		return false, err
	}
	defer sub.Close()
	logger.Infof("gateway relay: listening")
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return true, err
		}
		metrics.RealtimeEvents.WithLabelValues(string(ev.Type)).Inc()
		r.hub.Broadcast(ev)
	}
}
