package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/collab/internal/model"
	"github.com/collab/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	events chan Event
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func (f *fakeSub) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case err := <-f.fail:
		return Event{}, err
	case ev := <-f.events:
		return ev, nil
	}
}

func (f *fakeSub) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type fakeStream struct {
	mu      sync.Mutex
	subs    map[string]*fakeSub
	live    int
	maxLive int
	openErr error
}

func newFakeStream() *fakeStream { return &fakeStream{subs: make(map[string]*fakeSub)} }

func (f *fakeStream) Open(ctx context.Context, channelID string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeSub{events: make(chan Event, 16), fail: make(chan error, 1), closed: make(chan struct{})}
	f.subs[channelID] = s
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	go func() {
		<-s.closed
		f.mu.Lock()
		f.live--
		f.mu.Unlock()
	}()
	return s, nil
}

func (f *fakeStream) sub(channelID string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[channelID]
}

func (f *fakeStream) liveCount() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.maxLive
}

func strPtr(s string) *string { return &s }

func seededStore() *store.Store {
	st := store.New("u1")
	st.Dispatch(store.ChannelsLoaded{Active: []model.Channel{{ID: "GA001"}, {ID: "GA002"}}})
	st.Dispatch(store.ChannelSelected{ChannelID: "GA001"})
	st.Dispatch(store.MessagesLoaded{ChannelID: "GA001", Messages: []model.Message{{ID: "P", ChannelID: "GA001"}}})
	return st
}

func TestSubscribeReplacesPreviousSubscription(t *testing.T) {
	fs := newFakeStream()
	a := NewAdapter(fs, seededStore())
	ctx := context.Background()

	_, err := a.Subscribe(ctx, "GA001")
	require.NoError(t, err)
	unsub2, err := a.Subscribe(ctx, "GA002")
	require.NoError(t, err)

	<-fs.sub("GA001").closed
	assert.Equal(t, "GA002", a.Active())
	require.Eventually(t, func() bool { live, _ := fs.liveCount(); return live == 1 }, time.Second, time.Millisecond)
	_, maxLive := fs.liveCount()
	assert.LessOrEqual(t, maxLive, 2)

	unsub2()
	unsub2()
	<-fs.sub("GA002").closed
	assert.Equal(t, "", a.Active())
}

func TestStaleUnsubscribeDoesNotStopNewer(t *testing.T) {
	fs := newFakeStream()
	a := NewAdapter(fs, seededStore())
	unsub1, err := a.Subscribe(context.Background(), "GA001")
	require.NoError(t, err)
	_, err = a.Subscribe(context.Background(), "GA002")
	require.NoError(t, err)

	unsub1()
	assert.Equal(t, "GA002", a.Active())
}

func TestRoutesTopLevelAndReplies(t *testing.T) {
	fs := newFakeStream()
	st := seededStore()
	a := NewAdapter(fs, st)
	_, err := a.Subscribe(context.Background(), "GA001")
	require.NoError(t, err)
	sub := fs.sub("GA001")

	sub.events <- Event{Type: EventMessageCreated, ChannelID: "GA001", Message: model.Message{ID: "m1", ChannelID: "GA001"}}
	sub.events <- Event{Type: EventMessageCreated, ChannelID: "GA001", Message: model.Message{ID: "r1", ChannelID: "GA001", ParentID: strPtr("P")}}
	sub.events <- Event{Type: EventMessageCreated, ChannelID: "GA002", Message: model.Message{ID: "x", ChannelID: "GA002"}}

	require.Eventually(t, func() bool {
		p, _ := st.Snapshot().FindMessage("P")
		return p.ReplyCount == 1
	}, time.Second, time.Millisecond)

	s := st.Snapshot()
	var ids []string
	for _, m := range s.Feed("GA001") {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"P", "m1"}, ids)
	assert.Empty(t, s.Feed("GA002"))
	a.Close()
}

func TestOrderPreserved(t *testing.T) {
	fs := newFakeStream()
	st := seededStore()
	a := NewAdapter(fs, st)
	_, err := a.Subscribe(context.Background(), "GA001")
	require.NoError(t, err)
	sub := fs.sub("GA001")

	want := []string{"P"}
	for _, id := range []string{"a", "b", "c", "d"} {
		sub.events <- Event{Type: EventMessageCreated, ChannelID: "GA001", Message: model.Message{ID: id, ChannelID: "GA001"}}
		want = append(want, id)
	}
	require.Eventually(t, func() bool { return len(st.Snapshot().Feed("GA001")) == len(want) }, time.Second, time.Millisecond)
	var got []string
	for _, m := range st.Snapshot().Feed("GA001") {
		got = append(got, m.ID)
	}
	assert.Equal(t, want, got)
	a.Close()
}

func TestSubscribeFailureMarksDegraded(t *testing.T) {
	fs := newFakeStream()
	fs.openErr = errors.New("connection refused")
	st := seededStore()
	a := NewAdapter(fs, st)

	unsub, err := a.Subscribe(context.Background(), "GA001")
	require.ErrorIs(t, err, ErrSubscribe)
	require.NotNil(t, unsub)
	unsub()

	s := st.Snapshot()
	assert.Equal(t, store.ConnectivityDegraded, s.Connectivity)
	assert.Contains(t, s.ConnectivityReason, "connection refused")
	assert.Len(t, s.Feed("GA001"), 1, "last fetched state is kept")
}

func TestStreamErrorMarksDegradedAndRecovers(t *testing.T) {
	fs := newFakeStream()
	st := seededStore()
	a := NewAdapter(fs, st)
	_, err := a.Subscribe(context.Background(), "GA001")
	require.NoError(t, err)

	fs.sub("GA001").fail <- errors.New("conn reset")
	require.Eventually(t, func() bool {
		return st.Snapshot().Connectivity == store.ConnectivityDegraded
	}, time.Second, time.Millisecond)

	_, err = a.Subscribe(context.Background(), "GA001")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectivityLive, st.Snapshot().Connectivity)
	a.Close()
}

func TestRouteUpdates(t *testing.T) {
	deleted := Route(Event{Type: EventMessageUpdated, Message: model.Message{ID: "r1", ParentID: strPtr("P"), IsDeleted: true}})
	assert.Equal(t, store.MessageDeleted{MessageID: "r1", ParentID: "P"}, deleted)

	edited := Route(Event{Type: EventMessageUpdated, Message: model.Message{ID: "m1", Body: "new"}})
	assert.Equal(t, store.MessageEdited{MessageID: "m1", Body: "new"}, edited)

	assert.Nil(t, Route(Event{Type: EventSubscribed}))
}
