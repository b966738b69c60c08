package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
)

const maxBackoff = 30 * time.Second

// Retry — сколько ждать сервис и с какой паузы начинать повторы.
// Пауза удваивается после каждой неудачи, но не больше 30s.
type Retry struct {
	MaxWait time.Duration
	Backoff time.Duration
}

func (r Retry) withDefaults() Retry {
	if r.MaxWait <= 0 {
		r.MaxWait = time.Minute
	}
	if r.Backoff <= 0 {
		r.Backoff = 2 * time.Second
	}
	return r
}

// retry вызывает attempt, пока он не вернёт nil, не истечёт MaxWait или не будет отменён ctx.
// Каждая попытка учитывается в collab_startup_connect_attempts_total{target}.
func retry(ctx context.Context, target string, r Retry, attempt func(ctx context.Context) error) error {
	r = r.withDefaults()
	deadline := time.Now().Add(r.MaxWait)
	backoff := r.Backoff
	for n := 1; ; n++ {
		err := attempt(ctx)
		metrics.StartupConnects.WithLabelValues(target, metrics.Result(err)).Inc()
		if err == nil {
			if n > 1 {
				logger.Infof("%s connected after %d attempts", target, n)
			}
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s connect: %w", target, ctx.Err())
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("%s connect: gave up after %d attempts: %w", target, n, err)
		}
		logger.Warnf("%s connect failed (attempt %d), retry in %v: %v", target, n, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s connect: %w", target, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
