package store

import (
	"sync"
	"testing"
	"time"

	"github.com/collab/internal/filter"
	"github.com/collab/internal/mention"
	"github.com/collab/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func msg(id, channel, author string, at time.Duration) model.Message {
	return model.Message{ID: id, ChannelID: channel, AuthorID: author, Body: "body " + id, CreatedAt: t0.Add(at)}
}

func reply(id, parent, channel string, at time.Duration) model.Message {
	m := msg(id, channel, "u2", at)
	m.ParentID = strPtr(parent)
	return m
}

// seeded — два канала, GA001 активен, в ленте одно сообщение P.
func seeded(t *testing.T) *Store {
	t.Helper()
	st := New("u1")
	st.Dispatch(ChannelsLoaded{Active: []model.Channel{
		{ID: "GA001", Code: "GA001", Name: "General"},
		{ID: "GA002", Code: "GA002", Name: "Design"},
	}})
	st.Dispatch(ChannelSelected{ChannelID: "GA001"})
	st.Dispatch(MessagesLoaded{ChannelID: "GA001", Messages: []model.Message{msg("P", "GA001", "u2", 0)}})
	return st
}

func findIn(t *testing.T, s State, id string) model.Message {
	t.Helper()
	m, ok := s.FindMessage(id)
	require.True(t, ok, "message %s not found", id)
	return m
}

func channelIDs(list []model.Channel) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func TestReactionToggleIsItsOwnInverse(t *testing.T) {
	seeds := map[string][]model.Reaction{
		"empty":       nil,
		"sole member": {{Emoji: "🎉", UserIDs: []string{"u3"}}, {Emoji: "👍", UserIDs: []string{"u5"}}},
		"multi-user":  {{Emoji: "🎉", UserIDs: []string{"u4", "u3"}}, {Emoji: "👍", UserIDs: []string{"u5"}}},
		"backend order": {
			{Emoji: "👍", UserIDs: []string{"u5", "u1"}},
			{Emoji: "🎉", UserIDs: []string{"u3"}},
			{Emoji: "❤️", UserIDs: []string{"u9", "u2", "u3"}},
		},
	}
	toggles := []struct{ emoji, user string }{
		{"👍", "u1"}, {"👍", "u0"}, {"👍", "u9"},
		{"🎉", "u1"}, {"🎉", "u3"}, {"🎉", "u4"},
		{"❤️", "u3"}, {"🔥", "u3"}, {"✅", "u1"},
	}
	for name, seed := range seeds {
		for _, tg := range toggles {
			t.Run(name+" "+tg.emoji+" "+tg.user, func(t *testing.T) {
				st := seeded(t)
				p := msg("P", "GA001", "u2", 0)
				p.Reactions = seed
				st.Dispatch(MessagesLoaded{ChannelID: "GA001", Messages: []model.Message{p}})
				before := findIn(t, st.Snapshot(), "P").Reactions

				st.Dispatch(ReactionToggled{MessageID: "P", Emoji: tg.emoji, UserID: tg.user})
				st.Dispatch(ReactionToggled{MessageID: "P", Emoji: tg.emoji, UserID: tg.user})
				assert.Equal(t, before, findIn(t, st.Snapshot(), "P").Reactions)
			})
		}
	}
}

func TestReactionsLoadedInCanonicalOrder(t *testing.T) {
	st := seeded(t)
	p := msg("P", "GA001", "u2", 0)
	seed := []model.Reaction{{Emoji: "👍", UserIDs: []string{"u5", "u1"}}, {Emoji: "🎉", UserIDs: []string{"u3"}}}
	p.Reactions = seed
	st.Dispatch(MessagesLoaded{ChannelID: "GA001", Messages: []model.Message{p}})

	got := findIn(t, st.Snapshot(), "P").Reactions
	assert.Equal(t, []model.Reaction{
		{Emoji: "🎉", UserIDs: []string{"u3"}},
		{Emoji: "👍", UserIDs: []string{"u1", "u5"}},
	}, got)
	// входной срез не изменён
	assert.Equal(t, []string{"u5", "u1"}, seed[0].UserIDs)
}

func TestReactionFromTwoUsersThenOneRemoves(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "B"})
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})

	got := findIn(t, st.Snapshot(), "P").Reactions
	require.Len(t, got, 1)
	assert.Equal(t, "👍", got[0].Emoji)
	assert.Equal(t, []string{"B"}, got[0].UserIDs)
}

func TestReactionEmptiedEntryIsRemoved(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})
	assert.Nil(t, findIn(t, st.Snapshot(), "P").Reactions)
}

func TestReplyCountMatchesNonDeletedChildren(t *testing.T) {
	st := seeded(t)
	st.Dispatch(MessageAdded{Message: msg("Q", "GA001", "u2", time.Minute)})

	// Повторы, открытый и закрытый тред, удаление — вперемешку.
	st.Dispatch(ReplyAdded{Reply: reply("r1", "P", "GA001", 2*time.Minute)})
	st.Dispatch(ReplyAdded{Reply: reply("r1", "P", "GA001", 2*time.Minute)})
	st.Dispatch(ThreadOpened{ParentID: "P"})
	st.Dispatch(MessageAdded{Message: reply("r2", "P", "GA001", 3*time.Minute)})
	st.Dispatch(ReplyAdded{Reply: reply("r3", "Q", "GA001", 4*time.Minute)})
	st.Dispatch(ThreadRepliesLoaded{ParentID: "P", Replies: []model.Message{
		reply("r1", "P", "GA001", 2*time.Minute),
		reply("r2", "P", "GA001", 3*time.Minute),
	}})
	st.Dispatch(MessageDeleted{MessageID: "r2", ParentID: "P"})
	st.Dispatch(MessageDeleted{MessageID: "r2", ParentID: "P"})
	st.Dispatch(ThreadClosed{})
	st.Dispatch(ReplyAdded{Reply: reply("r4", "P", "GA001", 5*time.Minute)})

	s := st.Snapshot()
	assert.Equal(t, 2, findIn(t, s, "P").ReplyCount) // r1, r4
	assert.Equal(t, 1, findIn(t, s, "Q").ReplyCount) // r3
}

func TestReplyWhileNoThreadOpenIncrementsCountOnly(t *testing.T) {
	st := seeded(t)
	before := st.Snapshot()
	require.False(t, before.Thread.Open())

	st.Dispatch(MessageAdded{Message: reply("r1", "P", "GA001", time.Minute)})

	s := st.Snapshot()
	assert.Equal(t, findIn(t, before, "P").ReplyCount+1, findIn(t, s, "P").ReplyCount)
	assert.Len(t, s.Feed("GA001"), len(before.Feed("GA001")))
	for _, m := range s.Feed("GA001") {
		assert.NotEqual(t, "r1", m.ID)
	}
	assert.Empty(t, s.Thread.Replies)
}

func TestReplyToOpenThreadIsAppendedWithCount(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ThreadOpened{ParentID: "P"})
	s := st.Dispatch(ReplyAdded{Reply: reply("r1", "P", "GA001", time.Minute)})

	require.Len(t, s.Thread.Replies, 1)
	assert.Equal(t, "r1", s.Thread.Replies[0].ID)
	assert.Equal(t, 1, findIn(t, s, "P").ReplyCount)
}

func TestRepliesLoadedMergesAndSorts(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ThreadOpened{ParentID: "P"})
	require.True(t, st.Snapshot().Thread.Loading)
	st.Dispatch(ReplyAdded{Reply: reply("r3", "P", "GA001", 3*time.Minute)})
	s := st.Dispatch(ThreadRepliesLoaded{ParentID: "P", Replies: []model.Message{
		reply("r2", "P", "GA001", 2*time.Minute),
		reply("r1", "P", "GA001", time.Minute),
		reply("r3", "P", "GA001", 3*time.Minute),
	}})

	var got []string
	for _, r := range s.Thread.Replies {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, got)
	assert.False(t, s.Thread.Loading)
}

func TestStaleRepliesLoadIgnored(t *testing.T) {
	st := seeded(t)
	st.Dispatch(MessageAdded{Message: msg("Q", "GA001", "u2", time.Minute)})
	st.Dispatch(ThreadOpened{ParentID: "Q"})
	s := st.Dispatch(ThreadRepliesLoaded{ParentID: "P", Replies: []model.Message{reply("r1", "P", "GA001", time.Minute)}})
	assert.Empty(t, s.Thread.Replies)
	assert.True(t, s.Thread.Loading)
}

func TestChannelSwitchClearsThread(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ThreadOpened{ParentID: "P"})
	require.True(t, st.Snapshot().Thread.Open())

	s := st.Dispatch(ChannelSelected{ChannelID: "GA002"})
	assert.False(t, s.Thread.Open())
	assert.Equal(t, "GA002", s.ActiveChannelID)

	// Повторный выбор того же канала тоже закрывает тред.
	st.Dispatch(ThreadOpened{ParentID: "P"})
	s = st.Dispatch(ChannelSelected{ChannelID: "GA002"})
	assert.Equal(t, ThreadView{}, s.Thread)
}

func TestChannelSelectUnknownKeepsChannelClosesThread(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ThreadOpened{ParentID: "P"})
	require.True(t, st.Snapshot().Thread.Open())

	s := st.Dispatch(ChannelSelected{ChannelID: "nope"})
	assert.Equal(t, "GA001", s.ActiveChannelID)
	assert.False(t, s.Thread.Open())
	assert.Len(t, s.ActiveFeed(), 1)
}

func TestArchiveRestoreArchiveNoDuplication(t *testing.T) {
	st := seeded(t)

	s := st.Dispatch(ChannelArchived{ChannelID: "GA002"})
	assert.Equal(t, []string{"GA001"}, channelIDs(s.Channels))
	assert.Equal(t, []string{"GA002"}, channelIDs(s.Archived))
	assert.True(t, s.Archived[0].Archived)

	s = st.Dispatch(ChannelArchived{ChannelID: "GA002"})
	assert.Equal(t, []string{"GA002"}, channelIDs(s.Archived))

	s = st.Dispatch(ChannelRestored{ChannelID: "GA002"})
	assert.Equal(t, []string{"GA001", "GA002"}, channelIDs(s.Channels))
	assert.Empty(t, s.Archived)
	assert.False(t, s.Channels[1].Archived)

	s = st.Dispatch(ChannelArchived{ChannelID: "GA002"})
	assert.Equal(t, []string{"GA001"}, channelIDs(s.Channels))
	assert.Equal(t, []string{"GA002"}, channelIDs(s.Archived))
}

func TestArchiveActiveChannelSelectsFirstRemaining(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ThreadOpened{ParentID: "P"})

	s := st.Dispatch(ChannelArchived{ChannelID: "GA001"})
	assert.Equal(t, "GA002", s.ActiveChannelID)
	assert.False(t, s.Thread.Open())

	s = st.Dispatch(ChannelArchived{ChannelID: "GA002"})
	assert.Equal(t, "", s.ActiveChannelID)
	assert.Empty(t, s.Channels)

	s = st.Dispatch(ChannelSelected{ChannelID: "GA001"})
	assert.Equal(t, "", s.ActiveChannelID, "archived channel cannot be selected")
}

func TestChannelsLoadedKeepsListsDisjoint(t *testing.T) {
	st := New("u1")
	s := st.Dispatch(ChannelsLoaded{
		Active:   []model.Channel{{ID: "a"}, {ID: "b"}, {ID: "a"}},
		Archived: []model.Channel{{ID: "b"}},
	})
	assert.Equal(t, []string{"a"}, channelIDs(s.Channels))
	assert.Equal(t, []string{"b"}, channelIDs(s.Archived))
}

func TestMessageAddedIsIdempotent(t *testing.T) {
	st := seeded(t)
	m := msg("m1", "GA001", "u1", time.Minute)
	first := st.Dispatch(MessageAdded{Message: m})
	second := st.Dispatch(MessageAdded{Message: m})
	assert.Len(t, second.Feed("GA001"), 2)
	assert.Equal(t, first.Feed("GA001"), second.Feed("GA001"))
}

func TestMessagesLoadedKeepsLiveMessagesNewerThanWindow(t *testing.T) {
	st := seeded(t)
	st.Dispatch(MessageAdded{Message: msg("old", "GA001", "u2", -time.Hour)})
	st.Dispatch(MessageAdded{Message: msg("live", "GA001", "u2", 2*time.Minute)})

	s := st.Dispatch(MessagesLoaded{ChannelID: "GA001", Messages: []model.Message{
		msg("P", "GA001", "u2", 0),
		msg("m1", "GA001", "u2", time.Minute),
	}})
	ids := make([]string, 0, 3)
	for _, m := range s.Feed("GA001") {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"P", "m1", "live"}, ids)
}

func TestUnreadCountsForInactiveChannel(t *testing.T) {
	st := seeded(t)
	st.Dispatch(MessageAdded{Message: msg("x1", "GA002", "u2", time.Minute)})
	st.Dispatch(MessageAdded{Message: msg("x2", "GA002", "u1", 2*time.Minute)})
	s := st.Snapshot()
	assert.Equal(t, 1, s.Channels[1].UnreadCount)
	assert.Equal(t, t0.Add(2*time.Minute), s.Channels[1].LastActivityAt)

	s = st.Dispatch(ChannelSelected{ChannelID: "GA002"})
	assert.Equal(t, 0, s.Channels[1].UnreadCount)
}

func TestEditAndSoftDelete(t *testing.T) {
	st := seeded(t)
	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})
	s := st.Dispatch(MessageEdited{MessageID: "P", Body: "fixed"})
	p := findIn(t, s, "P")
	assert.Equal(t, "fixed", p.Body)
	assert.True(t, p.Edited)

	s = st.Dispatch(MessageDeleted{MessageID: "P"})
	p = findIn(t, s, "P")
	assert.True(t, p.IsDeleted)
	assert.Empty(t, p.Body)
	assert.Nil(t, p.Reactions)
	assert.Len(t, s.Feed("GA001"), 1)

	s = st.Dispatch(MessageEdited{MessageID: "P", Body: "again"})
	assert.Empty(t, findIn(t, s, "P").Body)
}

func TestTagsFromVocabularyOnly(t *testing.T) {
	st := seeded(t)
	st.Dispatch(TagAdded{MessageID: "P", Tag: "decision"})
	st.Dispatch(TagAdded{MessageID: "P", Tag: "decision"})
	st.Dispatch(TagAdded{MessageID: "P", Tag: "bogus"})
	assert.Equal(t, []string{"decision"}, findIn(t, st.Snapshot(), "P").Tags)

	st.Dispatch(TagRemoved{MessageID: "P", Tag: "decision"})
	assert.Nil(t, findIn(t, st.Snapshot(), "P").Tags)
}

func TestPinAndSaveAreToggles(t *testing.T) {
	st := seeded(t)
	s := st.Dispatch(PinToggled{ChannelID: "GA001", MessageID: "P", UserID: "u1", At: t0})
	assert.True(t, s.IsPinned("GA001", "P"))
	s = st.Dispatch(PinToggled{ChannelID: "GA001", MessageID: "P", UserID: "u1", At: t0})
	assert.False(t, s.IsPinned("GA001", "P"))

	s = st.Dispatch(SaveToggled{MessageID: "P", ChannelID: "GA001", At: t0})
	assert.True(t, s.IsSaved("P"))
	s = st.Dispatch(SaveToggled{MessageID: "P", ChannelID: "GA001", At: t0})
	assert.False(t, s.IsSaved("P"))
	assert.Nil(t, s.Saved)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	st := seeded(t)
	before := st.Snapshot()
	beforeFeed := append([]model.Message(nil), before.Feed("GA001")...)

	st.Dispatch(ReactionToggled{MessageID: "P", Emoji: "👍", UserID: "A"})
	st.Dispatch(MessageAdded{Message: msg("m2", "GA001", "u2", time.Minute)})
	st.Dispatch(ReplyAdded{Reply: reply("r1", "P", "GA001", time.Minute)})

	assert.Equal(t, beforeFeed, before.Feed("GA001"))
	assert.Nil(t, findIn(t, before, "P").Reactions)
	assert.Empty(t, before.CountedReplies)
}

func TestIndependentStores(t *testing.T) {
	a := seeded(t)
	b := seeded(t)
	a.Dispatch(MessageAdded{Message: msg("m2", "GA001", "u2", time.Minute)})
	assert.Len(t, a.Snapshot().Feed("GA001"), 2)
	assert.Len(t, b.Snapshot().Feed("GA001"), 1)
}

func TestVisibleAppliesFiltersThenTopic(t *testing.T) {
	st := seeded(t)
	m := msg("m2", "GA001", "u2", time.Minute)
	m.Topic = "planning"
	m.Body = "roadmap"
	st.Dispatch(MessageAdded{Message: m})

	st.Dispatch(TopicSelected{Topic: "planning"})
	assert.Len(t, st.Snapshot().Visible(), 1)

	st.Dispatch(FilterQuerySet{Query: "nothing matches"})
	assert.Empty(t, st.Snapshot().Visible())

	s := st.Dispatch(FiltersCleared{})
	assert.Equal(t, "planning", s.Filters.Topic)
	assert.Len(t, s.Visible(), 1)

	s = st.Dispatch(FilterCategorySet{Category: filter.CategoryAttachments})
	assert.Empty(t, s.Visible())
}

func TestPresenceSnapshotAndClassification(t *testing.T) {
	st := seeded(t)
	s := st.Dispatch(PresenceSnapshot{Records: []model.PresenceRecord{
		{UserID: "u2", State: model.PresenceOnline, LastActiveAt: t0},
	}})
	online := func(model.PresenceRecord, time.Time) model.PresenceStatus { return model.PresenceOnline }
	assert.Equal(t, model.PresenceOnline, s.PresenceOf("u2", t0, online))
	assert.Equal(t, model.PresenceOffline, s.PresenceOf("u9", t0, online))
}

func TestDirectMessages(t *testing.T) {
	st := New("u1")
	st.Dispatch(DirectThreadsLoaded{Threads: []model.DirectThread{
		{ID: "d1", ParticipantIDs: []string{"u1", "u2"}},
		{ID: "d2", ParticipantIDs: []string{"u1", "u3"}},
	}})
	st.Dispatch(DirectThreadOpened{ThreadID: "d1"})

	dm := msg("dm1", "", "u2", time.Minute)
	dm.Tags = []string{"fyi"}
	st.Dispatch(DirectMessageAdded{ThreadID: "d1", Message: dm})
	st.Dispatch(DirectMessageAdded{ThreadID: "d1", Message: dm})
	st.Dispatch(DirectMessageAdded{ThreadID: "d2", Message: msg("dm2", "", "u3", time.Minute)})

	s := st.Snapshot()
	d1, _ := s.DirectThread("d1")
	d2, _ := s.DirectThread("d2")
	require.Len(t, d1.Messages, 1)
	assert.Nil(t, d1.Messages[0].Tags)
	assert.Equal(t, 0, d1.UnreadCount)
	assert.Equal(t, 1, d2.UnreadCount)

	st.Dispatch(ChannelsLoaded{Active: []model.Channel{{ID: "c"}}})
	s = st.Dispatch(ChannelSelected{ChannelID: "c"})
	assert.Equal(t, "", s.ActiveDirectID)
}

func TestCallLifecycle(t *testing.T) {
	st := New("u1")
	s := st.Dispatch(CallStarted{Call: model.CallSession{ID: "call1", ScopeID: "GA001", StartedBy: "u1", Participants: []string{"u1"}, StartedAt: t0}})
	require.NotNil(t, s.Call)
	assert.Equal(t, model.CallStatusRinging, s.Call.Status)

	s = st.Dispatch(CallJoined{CallID: "call1", UserID: "u2"})
	assert.Equal(t, []string{"u1", "u2"}, s.Call.Participants)
	assert.Equal(t, model.CallStatusActive, s.Call.Status)

	s = st.Dispatch(CallJoined{CallID: "other", UserID: "u3"})
	assert.Len(t, s.Call.Participants, 2)

	s = st.Dispatch(CallEnded{CallID: "call1", At: t0.Add(time.Hour)})
	assert.Equal(t, model.CallStatusEnded, s.Call.Status)
	require.NotNil(t, s.Call.EndedAt)

	s = st.Dispatch(CallJoined{CallID: "call1", UserID: "u3"})
	assert.Len(t, s.Call.Participants, 2)
}

func TestConnectivityChanged(t *testing.T) {
	st := New("u1")
	s := st.Dispatch(ConnectivityChanged{Status: ConnectivityDegraded, Reason: "listen failed"})
	assert.Equal(t, ConnectivityDegraded, s.Connectivity)
	assert.Equal(t, "listen failed", s.ConnectivityReason)
	s = st.Dispatch(ConnectivityChanged{Status: ConnectivityLive, Reason: "ignored"})
	assert.Equal(t, "", s.ConnectivityReason)
}

func TestHelloMariaEndToEnd(t *testing.T) {
	roster := []model.Member{
		{ID: "u1", Name: "Ana"},
		{ID: "u7", Name: "Maria", Email: "maria@example.com"},
	}
	st := seeded(t)
	st.Dispatch(MembersLoaded{Members: roster})
	before := len(st.Snapshot().Feed("GA001"))

	draft := "Hello @Mar"
	q, _, ok := mention.ActiveQuery(draft, len([]rune(draft)))
	require.True(t, ok)
	found := mention.Lookup(roster, q, mention.DefaultLimit)
	require.Len(t, found, 1)
	body := "Hello " + mention.Token(found[0])
	body = body[:len(body)-1]
	require.Equal(t, "Hello @Maria", body)

	created := msg("m-new", "GA001", "u1", time.Minute)
	created.Body = body
	s := st.Dispatch(MessageAdded{Message: created})

	assert.Len(t, s.Feed("GA001"), before+1)
	resolved := mention.Resolve(findIn(t, s, "m-new").Body, s.Members)
	require.Len(t, resolved, 1)
	assert.Equal(t, "u7", resolved[0].ID)
}

func TestListenersReceiveEveryDispatch(t *testing.T) {
	st := New("u1")
	var mu sync.Mutex
	var kinds []string
	unsub := st.Subscribe(func(a Action, _ State) {
		mu.Lock()
		kinds = append(kinds, a.Kind())
		mu.Unlock()
	})
	st.Dispatch(FilterQuerySet{Query: "x"})
	unsub()
	unsub()
	st.Dispatch(FiltersCleared{})
	assert.Equal(t, []string{"filter_query_set"}, kinds)
}

func TestConcurrentDispatchIsSerialized(t *testing.T) {
	st := seeded(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Dispatch(ReplyAdded{Reply: reply("r"+string(rune('A'+i)), "P", "GA001", time.Duration(i)*time.Second)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, findIn(t, st.Snapshot(), "P").ReplyCount)
}
