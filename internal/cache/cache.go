// Package cache хранит последние успешно загруженные ленты на диске (pebble),
// чтобы при недоступном бэкенде показывать последнее известное состояние.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
)

// ErrMiss — в кеше нет записи.
var ErrMiss = errors.New("cache: miss")

// Feed — снимок ленты канала на момент загрузки.
type Feed struct {
	SavedAt  time.Time       `json:"saved_at"`
	Messages []model.Message `json:"messages"`
}

// Channels — снимок списка каналов пользователя.
type Channels struct {
	SavedAt  time.Time       `json:"saved_at"`
	Active   []model.Channel `json:"active"`
	Archived []model.Channel `json:"archived"`
}

type Cache struct {
	db  *pebble.DB
	now func() time.Time
}

// Open открывает (или создаёт) кеш в каталоге dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o700); err != nil {
		return nil, fmt.Errorf("cache.Open: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("cache.Open: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func feedKey(channelID string) []byte  { return []byte("feed:" + channelID) }
func channelsKey(userID string) []byte { return []byte("channels:" + userID) }

// PutFeed сохраняет ленту канала.
func (c *Cache) PutFeed(channelID string, msgs []model.Message) error {
	return c.put(feedKey(channelID), Feed{SavedAt: c.now().UTC(), Messages: msgs})
}

// Feed возвращает последнюю сохранённую ленту или ErrMiss.
func (c *Cache) Feed(channelID string) (Feed, error) {
	var f Feed
	err := c.get(feedKey(channelID), &f)
	return f, err
}

// PutChannels сохраняет списки каналов пользователя.
func (c *Cache) PutChannels(userID string, active, archived []model.Channel) error {
	return c.put(channelsKey(userID), Channels{SavedAt: c.now().UTC(), Active: active, Archived: archived})
}

// Channels возвращает последний сохранённый список каналов или ErrMiss.
func (c *Cache) Channels(userID string) (Channels, error) {
	var ch Channels
	err := c.get(channelsKey(userID), &ch)
	return ch, err
}

// DropFeed удаляет ленту канала (например, после архивации).
func (c *Cache) DropFeed(channelID string) error {
	if err := c.db.Delete(feedKey(channelID), pebble.Sync); err != nil {
		return fmt.Errorf("cache.DropFeed: %w", err)
	}
	return nil
}

// CachedChannels перечисляет каналы, для которых есть сохранённая лента.
func (c *Cache) CachedChannels() ([]string, error) {
	prefix := []byte("feed:")
	it, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: []byte("feed;"),
	})
	if err != nil {
		return nil, fmt.Errorf("cache.CachedChannels: %w", err)
	}
	defer it.Close()
	var out []string
	for ok := it.First(); ok; ok = it.Next() {
		out = append(out, string(it.Key()[len(prefix):]))
	}
	return out, it.Error()
}

func (c *Cache) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache.put %s: %w", key, err)
	}
	if err := c.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("cache.put %s: %w", key, err)
	}
	return nil
}

func (c *Cache) get(key []byte, v any) error {
	data, closer, err := c.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache.get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		// битая запись равносильна промаху
		logger.Warnf("cache: corrupt entry %s: %v", key, err)
		return ErrMiss
	}
	return nil
}
