package memory

import (
	"context"
	"sync"

	"github.com/collab/internal/model"
)

// Client хранит присутствие в памяти процесса (режим -dev и тесты).
type Client struct {
	mu      sync.RWMutex
	records map[string]model.PresenceRecord
}

func New() *Client {
	return &Client{records: make(map[string]model.PresenceRecord)}
}

func (c *Client) Close() error { return nil }

func (c *Client) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.records[rec.UserID]; ok && cur.LastActiveAt.After(rec.LastActiveAt) {
		return nil
	}
	c.records[rec.UserID] = rec
	return nil
}

func (c *Client) FetchPresence(ctx context.Context, userIDs []string) (map[string]model.PresenceRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.PresenceRecord, len(userIDs))
	for _, id := range userIDs {
		if rec, ok := c.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}
