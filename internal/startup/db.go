package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDBWithRetry открывает пул и проверяет его ping'ом, повторяя попытки,
// пока Postgres поднимается (в том числе встроенный при --dev).
// Ошибка возвращается вызывающему: процесс сам решает, завершаться ли.
func ConnectDBWithRetry(ctx context.Context, poolCfg *pgxpool.Config, r Retry) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := retry(ctx, "postgres", r, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return fmt.Errorf("open pool: %w", err)
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return fmt.Errorf("ping: %w", err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
