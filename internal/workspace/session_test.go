package workspace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/collab/internal/cache"
	"github.com/collab/internal/composer"
	"github.com/collab/internal/mention"
	"github.com/collab/internal/model"
	"github.com/collab/internal/realtime"
	"github.com/collab/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, w *world, opts Options) *Session {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return t0.Add(time.Hour) }
	}
	s := New(store.New("u1"), w.backend(), opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func feedIDs(s store.State, channelID string) []string {
	var out []string
	for _, m := range s.Feed(channelID) {
		out = append(out, m.ID)
	}
	return out
}

func TestLoadAndSelectChannel(t *testing.T) {
	w := newWorld()
	w.pins["GA001"] = []model.PinnedMessage{{ChannelID: "GA001", MessageID: "P", PinnedBy: "maria"}}
	sub := &fakeSubscriber{}
	s := newSession(t, w, Options{Realtime: sub})

	st := s.Store().Snapshot()
	assert.Len(t, st.Members, 2)
	assert.Len(t, st.Channels, 2)

	require.NoError(t, s.SelectChannel(context.Background(), "GA001"))
	st = s.Store().Snapshot()
	assert.Equal(t, "GA001", st.ActiveChannelID)
	assert.Equal(t, []string{"P"}, feedIDs(st, "GA001"))
	assert.True(t, st.IsPinned("GA001", "P"))
	assert.Equal(t, []string{"general", "release"}, st.Topics["GA001"])
	ch, _ := st.ActiveChannel()
	assert.Zero(t, ch.UnreadCount)
	assert.Equal(t, []string{"GA001"}, sub.subs)
	assert.Equal(t, []string{"GA001"}, w.reads)
}

func TestSelectUnknownChannel(t *testing.T) {
	sub := &fakeSubscriber{}
	s := newSession(t, newWorld(), Options{Realtime: sub})
	err := s.SelectChannel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Empty(t, sub.subs)
}

func TestSwitchingChannelUnsubscribesPrevious(t *testing.T) {
	sub := &fakeSubscriber{}
	s := newSession(t, newWorld(), Options{Realtime: sub})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))
	require.NoError(t, s.SelectChannel(ctx, "GA002"))
	assert.Equal(t, []string{"GA001", "GA002"}, sub.subs)
	assert.Equal(t, []string{"GA001"}, sub.unsubbed)

	s.Close()
	assert.Equal(t, []string{"GA001", "GA002"}, sub.unsubbed)
	assert.True(t, sub.closed)
}

func TestSendDispatchesCanonicalMessageOnce(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	require.NoError(t, s.Send(ctx, composer.Request{ChannelID: "GA001", Body: "hi"}))
	st := s.Store().Snapshot()
	require.Len(t, st.Feed("GA001"), 2)
	sent := st.Feed("GA001")[1]
	assert.Equal(t, "Ann Lee", sent.AuthorName, "canonical row from the backend")
	assert.False(t, sent.CreatedAt.IsZero())

	// эхо той же записи из подписки
	s.Store().Dispatch(realtime.Route(realtime.Event{Type: realtime.EventMessageCreated, ChannelID: "GA001", Message: sent}))
	assert.Len(t, s.Store().Snapshot().Feed("GA001"), 2)
}

func TestHelloMariaThroughComposer(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))
	before := len(s.Store().Snapshot().Feed("GA001"))

	c := composer.New(composer.Options{Roster: func() []model.Member { return s.Store().Snapshot().Members }})
	c.Type("Hello @Mar")
	require.True(t, c.AcceptMention())
	require.NoError(t, c.Submit(ctx, "GA001", "", s.Send))

	feed := s.Store().Snapshot().Feed("GA001")
	require.Len(t, feed, before+1)
	last := feed[len(feed)-1]
	assert.Equal(t, "Hello @Maria", last.Body)
	resolved := mention.Resolve(last.Body, s.Store().Snapshot().Members)
	require.Len(t, resolved, 1)
	assert.Equal(t, "maria", resolved[0].ID)
}

func TestSendFailureIsDistinguishable(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))
	before := s.Store().Snapshot()

	w.failCreate = errDown
	c := composer.New(composer.Options{})
	c.Type("will fail")
	err := c.Submit(ctx, "GA001", "", s.Send)
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, "will fail", c.Draft().Text, "draft kept for retry")
	assert.Equal(t, before.Feed("GA001"), s.Store().Snapshot().Feed("GA001"))
}

func TestReplyToClosedThreadThenOpen(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	parent := "P"
	require.NoError(t, s.Send(ctx, composer.Request{ChannelID: "GA001", Body: "re", ParentID: &parent}))
	st := s.Store().Snapshot()
	assert.Equal(t, []string{"P"}, feedIDs(st, "GA001"), "replies never enter the feed")
	assert.Equal(t, 1, st.Feed("GA001")[0].ReplyCount)
	assert.Empty(t, st.Thread.Replies)

	require.NoError(t, s.OpenThread(ctx, "P"))
	st = s.Store().Snapshot()
	require.Len(t, st.Thread.Replies, 1)
	assert.Equal(t, 1, st.Feed("GA001")[0].ReplyCount, "loading does not double count")

	require.NoError(t, s.Delete(ctx, st.Thread.Replies[0].ID))
	assert.Equal(t, 0, s.Store().Snapshot().Feed("GA001")[0].ReplyCount)

	s.CloseThread()
	assert.False(t, s.Store().Snapshot().Thread.Open())
}

func TestInFlightSendAfterChannelSwitch(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	w.beforeCreate = func() {
		w.beforeCreate = nil
		require.NoError(t, s.SelectChannel(ctx, "GA002"))
	}
	require.NoError(t, s.Send(ctx, composer.Request{ChannelID: "GA001", Body: "late"}))

	st := s.Store().Snapshot()
	assert.Equal(t, "GA002", st.ActiveChannelID)
	assert.Len(t, st.Feed("GA001"), 2, "lands in the channel it was sent to")
	assert.Empty(t, st.Feed("GA002"))
}

func TestMessagesFallBackToCache(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer c.Close()

	w := newWorld()
	s := newSession(t, w, Options{Cache: c})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	w.failList = errDown
	s2 := newSession(t, w, Options{Cache: c})
	require.NoError(t, s2.SelectChannel(ctx, "GA001"))
	st := s2.Store().Snapshot()
	assert.Equal(t, []string{"P"}, feedIDs(st, "GA001"))
	assert.Equal(t, store.ConnectivityDegraded, st.Connectivity)
	assert.Contains(t, st.ConnectivityReason, "backend unavailable")

	require.Error(t, s2.SelectChannel(ctx, "GA002"), "nothing cached for GA002")
}

func TestArchiveDropsCachedFeed(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer c.Close()

	s := newSession(t, newWorld(), Options{Cache: c})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))
	_, err = c.Feed("GA001")
	require.NoError(t, err)

	require.NoError(t, s.Archive(ctx, "GA001"))
	_, err = c.Feed("GA001")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestChannelsFallBackToCache(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer c.Close()

	w := newWorld()
	newSession(t, w, Options{Cache: c})

	w.failChannels = errDown
	s := New(store.New("u1"), w.backend(), Options{Cache: c})
	require.NoError(t, s.Load(context.Background()))
	st := s.Store().Snapshot()
	assert.Len(t, st.Channels, 2)
	assert.Equal(t, store.ConnectivityDegraded, st.Connectivity)

	bare := New(store.New("u1"), w.backend(), Options{})
	assert.ErrorIs(t, bare.Load(context.Background()), errDown)
}

func TestSubscriptionFailureIsObservable(t *testing.T) {
	st := store.New("u1")
	adapter := realtime.NewAdapter(failingStream{}, st)
	s := New(st, newWorld().backend(), Options{Realtime: adapter})
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	require.NoError(t, s.SelectChannel(ctx, "GA001"), "feed still loads")
	snap := st.Snapshot()
	assert.Equal(t, []string{"P"}, feedIDs(snap, "GA001"))
	assert.Equal(t, store.ConnectivityDegraded, snap.Connectivity)
}

func TestToggleReactionFollowsBackend(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	require.NoError(t, s.ToggleReaction(ctx, "P", "👍"))
	m, _ := s.Store().Snapshot().FindMessage("P")
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, []string{"u1"}, m.Reactions[0].UserIDs)

	require.NoError(t, s.ToggleReaction(ctx, "P", "👍"))
	m, _ = s.Store().Snapshot().FindMessage("P")
	assert.Empty(t, m.Reactions)

	w.failReaction = errDown
	assert.ErrorIs(t, s.ToggleReaction(ctx, "P", "👍"), errDown)
	m, _ = s.Store().Snapshot().FindMessage("P")
	assert.Empty(t, m.Reactions, "failed write leaves the store untouched")
}

func TestToggleReactionReconcilesStaleState(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))
	// локально реакция уже есть, бэкенд о ней не знает и сообщает "добавлена"
	s.Store().Dispatch(store.ReactionToggled{MessageID: "P", Emoji: "🎉", UserID: "u1"})

	require.NoError(t, s.ToggleReaction(ctx, "P", "🎉"))
	m, _ := s.Store().Snapshot().FindMessage("P")
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, []string{"u1"}, m.Reactions[0].UserIDs)
}

func TestPinSaveTag(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	require.NoError(t, s.TogglePin(ctx, "P"))
	assert.True(t, s.Store().Snapshot().IsPinned("GA001", "P"))
	assert.Len(t, w.pins["GA001"], 1)
	require.NoError(t, s.TogglePin(ctx, "P"))
	assert.False(t, s.Store().Snapshot().IsPinned("GA001", "P"))
	assert.Empty(t, w.pins["GA001"])

	require.NoError(t, s.ToggleSave(ctx, "P"))
	assert.True(t, s.Store().Snapshot().IsSaved("P"))
	require.NoError(t, s.ToggleSave(ctx, "P"))
	assert.False(t, s.Store().Snapshot().IsSaved("P"))

	assert.ErrorIs(t, s.AddTag(ctx, "P", "gossip"), ErrInvalidTag)
	assert.Empty(t, w.tags["P"])
	require.NoError(t, s.AddTag(ctx, "P", "decision"))
	m, _ := s.Store().Snapshot().FindMessage("P")
	assert.Equal(t, []string{"decision"}, m.Tags)
	require.NoError(t, s.RemoveTag(ctx, "P", "decision"))
	m, _ = s.Store().Snapshot().FindMessage("P")
	assert.Empty(t, m.Tags)

	assert.ErrorIs(t, s.TogglePin(ctx, "missing"), ErrUnknownMessage)
}

func TestEditAndDelete(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	require.NoError(t, s.Send(ctx, composer.Request{EditOf: "P", Body: "parent v2"}))
	m, _ := s.Store().Snapshot().FindMessage("P")
	assert.Equal(t, "parent v2", m.Body)
	assert.True(t, m.Edited)

	require.NoError(t, s.Delete(ctx, "P"))
	m, _ = s.Store().Snapshot().FindMessage("P")
	assert.True(t, m.IsDeleted)

	assert.Error(t, s.Edit(ctx, "ghost", "x"))
}

func TestArchiveActiveChannelMovesSubscription(t *testing.T) {
	w := newWorld()
	sub := &fakeSubscriber{}
	s := newSession(t, w, Options{Realtime: sub})
	ctx := context.Background()
	require.NoError(t, s.SelectChannel(ctx, "GA001"))

	require.NoError(t, s.Archive(ctx, "GA001"))
	st := s.Store().Snapshot()
	assert.Equal(t, "GA002", st.ActiveChannelID)
	require.Len(t, st.Archived, 1)
	assert.Equal(t, []string{"GA001", "GA002"}, sub.subs)

	require.NoError(t, s.Restore(ctx, "GA001"))
	st = s.Store().Snapshot()
	assert.Len(t, st.Channels, 2)
	assert.Empty(t, st.Archived)
	assert.Equal(t, "GA002", st.ActiveChannelID)
}

func TestChannelFlags(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, Options{})
	ctx := context.Background()
	require.NoError(t, s.SetFavorite(ctx, "GA002", true))
	require.NoError(t, s.SetMuted(ctx, "GA002", true))
	st := s.Store().Snapshot()
	assert.True(t, st.Channels[1].Favorite)
	assert.True(t, st.Channels[1].Muted)
	assert.True(t, w.active[1].Favorite)
}

func TestFiltersAndTopic(t *testing.T) {
	w := newWorld()
	w.msgs = append(w.msgs, model.Message{ID: "R", ChannelID: "GA001", AuthorID: "u1", Body: "release notes", Topic: "release", CreatedAt: t0.Add(time.Minute)})
	s := newSession(t, w, Options{})
	require.NoError(t, s.SelectChannel(context.Background(), "GA001"))

	s.SelectTopic("release")
	assert.Len(t, s.Visible(), 1)
	s.SelectTopic(model.DefaultTopic)
	s.Search("parent")
	require.Len(t, s.Visible(), 1)
	assert.Equal(t, "P", s.Visible()[0].ID)
	s.ClearFilters()
	assert.Len(t, s.Visible(), 2)
}

func TestDirectMessages(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	ctx := context.Background()

	id, err := s.OpenDirect(ctx, "maria", "maria")
	require.NoError(t, err)
	assert.Equal(t, "dm-maria,u1", id)
	assert.Equal(t, id, s.Store().Snapshot().ActiveDirectID)

	require.NoError(t, s.SendDirect(ctx, id, "hey"))
	d, ok := s.Store().Snapshot().DirectThread(id)
	require.True(t, ok)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "hey", d.Messages[0].Body)

	again, err := s.OpenDirect(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, s.Store().Snapshot().DirectThreads, 1)

	s.CloseDirect()
	assert.Empty(t, s.Store().Snapshot().ActiveDirectID)
}

func TestCalls(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	call := s.StartCall("GA001")
	assert.Equal(t, model.CallStatusRinging, s.Store().Snapshot().Call.Status)

	require.NoError(t, s.JoinCall(call.ID, "maria"))
	c := s.Store().Snapshot().Call
	assert.Equal(t, model.CallStatusActive, c.Status)
	assert.Equal(t, []string{"u1", "maria"}, c.Participants)

	assert.ErrorIs(t, s.JoinCall("other", "maria"), ErrNoCall)
	require.NoError(t, s.EndCall(call.ID))
	assert.Equal(t, model.CallStatusEnded, s.Store().Snapshot().Call.Status)
}

func TestPresenceClassification(t *testing.T) {
	now := t0.Add(time.Hour)
	s := newSession(t, newWorld(), Options{Now: func() time.Time { return now }})
	s.Store().Dispatch(store.PresenceSnapshot{Records: []model.PresenceRecord{
		{UserID: "u1", State: model.PresenceOnline, LastActiveAt: now.Add(-time.Minute)},
		{UserID: "maria", State: model.PresenceOnline, LastActiveAt: now.Add(-10 * time.Minute)},
	}})
	assert.Equal(t, model.PresenceOnline, s.Presence("u1"))
	assert.Equal(t, model.PresenceAway, s.Presence("maria"))
	assert.Equal(t, model.PresenceOffline, s.Presence("ghost"))
}

type staticSuggester []model.Suggestion

func (s staticSuggester) Suggest(context.Context, string) []model.Suggestion { return s }

func TestSuggest(t *testing.T) {
	s := newSession(t, newWorld(), Options{})
	assert.Nil(t, s.Suggest(context.Background(), "x"))

	s2 := newSession(t, newWorld(), Options{Suggester: staticSuggester{{Kind: "tag", Text: "decision"}}})
	assert.Len(t, s2.Suggest(context.Background(), "x"), 1)
}
