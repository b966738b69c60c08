package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/collab/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFeedRoundTrip(t *testing.T) {
	c := openTemp(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	_, err := c.Feed("c1")
	assert.ErrorIs(t, err, ErrMiss)

	msgs := []model.Message{
		{ID: "m1", ChannelID: "c1", Body: "hi", CreatedAt: at, ReplyCount: 2,
			Reactions: []model.Reaction{{Emoji: "👍", UserIDs: []string{"u1"}}}},
		{ID: "m2", ChannelID: "c1", Body: "there", CreatedAt: at.Add(time.Second)},
	}
	require.NoError(t, c.PutFeed("c1", msgs))

	f, err := c.Feed("c1")
	require.NoError(t, err)
	assert.True(t, f.SavedAt.Equal(at))
	require.Len(t, f.Messages, 2)
	assert.Equal(t, "m1", f.Messages[0].ID)
	assert.Equal(t, 2, f.Messages[0].ReplyCount)
	assert.Equal(t, []string{"u1"}, f.Messages[0].Reactions[0].UserIDs)

	require.NoError(t, c.PutFeed("c1", msgs[:1]))
	f, err = c.Feed("c1")
	require.NoError(t, err)
	assert.Len(t, f.Messages, 1, "later fetch replaces the snapshot")
}

func TestChannelsAndDrop(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.PutChannels("u1",
		[]model.Channel{{ID: "c1", Name: "general"}},
		[]model.Channel{{ID: "c9", Name: "old", Archived: true}}))
	ch, err := c.Channels("u1")
	require.NoError(t, err)
	require.Len(t, ch.Active, 1)
	require.Len(t, ch.Archived, 1)
	assert.True(t, ch.Archived[0].Archived)

	_, err = c.Channels("u2")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.PutFeed("c1", nil))
	require.NoError(t, c.PutFeed("c2", nil))
	ids, err := c.CachedChannels()
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	require.NoError(t, c.DropFeed("c1"))
	_, err = c.Feed("c1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.db.Set(feedKey("c1"), []byte("{not json"), pebble.Sync))
	_, err := c.Feed("c1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestReopenKeepsData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.PutFeed("c1", []model.Message{{ID: "m1"}}))
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	f, err := c.Feed("c1")
	require.NoError(t, err)
	assert.Equal(t, "m1", f.Messages[0].ID)
}
