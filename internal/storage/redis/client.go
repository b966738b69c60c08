package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/collab/internal/model"
	"github.com/redis/go-redis/v9"
)

// Запись присутствия живёт сутки: после 15 минут тишины пользователь и так offline.
const PresenceTTL = 24 * time.Hour

// upsertScript пишет hash presence:{user}, только если новая отметка не старше сохранённой.
var upsertScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'last_active_at')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'last_active_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func presenceKey(userID string) string { return "presence:" + userID }

// UpsertPresence сохраняет состояние в hash presence:{user}; время хранится в миллисекундах.
func (c *Client) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	ms := rec.LastActiveAt.UnixMilli()
	err := upsertScript.Run(ctx, c.cli, []string{presenceKey(rec.UserID)},
		string(rec.State), ms, PresenceTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis upsert presence: %w", err)
	}
	return nil
}

// FetchPresence читает записи одним pipeline; отсутствующие ключи пропускаются.
func (c *Client) FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error) {
	out := make(map[string]model.PresenceRecord, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	pipe := c.cli.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis fetch presence: %w", err)
	}
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		ms, err := strconv.ParseInt(vals["last_active_at"], 10, 64)
		if err != nil {
			continue
		}
		out[userIDs[i]] = model.PresenceRecord{
			UserID:       userIDs[i],
			State:        model.PresenceStatus(vals["state"]),
			LastActiveAt: time.UnixMilli(ms).UTC(),
		}
	}
	return out, nil
}
