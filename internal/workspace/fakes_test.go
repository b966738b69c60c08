package workspace

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collab/internal/model"
	"github.com/collab/internal/realtime"
	"github.com/collab/internal/repository"
)

var (
	t0      = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	errDown = errors.New("backend unavailable")
)

type world struct {
	mu sync.Mutex

	members  []model.Member
	active   []model.Channel
	archived []model.Channel
	msgs     []model.Message
	topics   map[string][]string
	pins     map[string][]model.PinnedMessage
	saved    []model.SavedMessage
	tags     map[string][]string
	react    map[string]bool // msg|emoji|user
	threads  []model.DirectThread
	dms      map[string][]model.Message
	reads    []string

	failList     error
	failCreate   error
	failChannels error
	failReaction error
	beforeCreate func()
}

func newWorld() *world {
	return &world{
		members: []model.Member{
			{ID: "u1", Name: "Ann Lee", Email: "ann@example.com"},
			{ID: "maria", Name: "Maria", Email: "maria@example.com"},
		},
		active: []model.Channel{
			{ID: "GA001", Code: "GA001", Name: "General", UnreadCount: 3},
			{ID: "GA002", Code: "GA002", Name: "Design"},
		},
		msgs: []model.Message{
			{ID: "P", ChannelID: "GA001", AuthorID: "maria", AuthorName: "Maria", Body: "parent", CreatedAt: t0},
		},
		topics: map[string][]string{"GA001": {"general", "release"}},
		pins:   map[string][]model.PinnedMessage{},
		tags:   map[string][]string{},
		react:  map[string]bool{},
		dms:    map[string][]model.Message{},
	}
}

func (w *world) backend() Backend {
	return Backend{
		Messages:  fakeMessages{w},
		Channels:  fakeChannels{w},
		Members:   fakeMembers{w},
		Reactions: fakeReactions{w},
		Tags:      fakeTags{w},
		Pins:      fakePins{w},
		Saves:     fakeSaves{w},
		Directs:   fakeDirects{w},
	}
}

func (w *world) name(id string) string {
	for _, m := range w.members {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}

type fakeMessages struct{ w *world }

func (f fakeMessages) Create(_ context.Context, m *model.Message) (*model.Message, error) {
	if f.w.beforeCreate != nil {
		f.w.beforeCreate()
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failCreate != nil {
		return nil, f.w.failCreate
	}
	out := *m
	out.CreatedAt = t0.Add(time.Duration(len(f.w.msgs)) * time.Minute)
	out.AuthorName = f.w.name(m.AuthorID)
	f.w.msgs = append(f.w.msgs, out)
	return &out, nil
}

func (f fakeMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, m := range f.w.msgs {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeMessages) ListMessages(_ context.Context, channelID string, limit int) ([]model.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failList != nil {
		return nil, f.w.failList
	}
	var out []model.Message
	for _, m := range f.w.msgs {
		if m.ChannelID == channelID && !m.IsReply() {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f fakeMessages) ListReplies(_ context.Context, parentID string) ([]model.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []model.Message
	for _, m := range f.w.msgs {
		if m.Parent() == parentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f fakeMessages) UpdateBody(_ context.Context, id, body string, _ time.Time) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i := range f.w.msgs {
		if f.w.msgs[i].ID == id {
			f.w.msgs[i].Body, f.w.msgs[i].Edited = body, true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f fakeMessages) SoftDelete(_ context.Context, id string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i := range f.w.msgs {
		if f.w.msgs[i].ID == id {
			f.w.msgs[i].IsDeleted = true
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeChannels struct{ w *world }

func (f fakeChannels) ListForUser(context.Context, string) ([]model.Channel, []model.Channel, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failChannels != nil {
		return nil, nil, f.w.failChannels
	}
	return append([]model.Channel(nil), f.w.active...), append([]model.Channel(nil), f.w.archived...), nil
}

func (f fakeChannels) SetArchived(_ context.Context, channelID string, archived bool) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	from, to := &f.w.active, &f.w.archived
	if !archived {
		from, to = to, from
	}
	for i, c := range *from {
		if c.ID == channelID {
			*from = append((*from)[:i:i], (*from)[i+1:]...)
			c.Archived = archived
			*to = append(*to, c)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f fakeChannels) SetFlags(_ context.Context, channelID, _ string, favorite, muted *bool) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i := range f.w.active {
		if f.w.active[i].ID == channelID {
			if favorite != nil {
				f.w.active[i].Favorite = *favorite
			}
			if muted != nil {
				f.w.active[i].Muted = *muted
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f fakeChannels) MarkRead(_ context.Context, channelID, _ string, _ time.Time) error {
	f.w.mu.Lock()
	f.w.reads = append(f.w.reads, channelID)
	f.w.mu.Unlock()
	return nil
}

func (f fakeChannels) Topics(_ context.Context, channelID string) ([]string, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.topics[channelID], nil
}

type fakeMembers struct{ w *world }

func (f fakeMembers) ListActive(context.Context) ([]model.Member, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]model.Member(nil), f.w.members...), nil
}

type fakeReactions struct{ w *world }

func (f fakeReactions) Toggle(_ context.Context, messageID, userID, emoji string) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failReaction != nil {
		return false, f.w.failReaction
	}
	key := strings.Join([]string{messageID, emoji, userID}, "|")
	f.w.react[key] = !f.w.react[key]
	return f.w.react[key], nil
}

type fakeTags struct{ w *world }

func (f fakeTags) Add(_ context.Context, messageID, tag string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.tags[messageID] = append(f.w.tags[messageID], tag)
	return nil
}

func (f fakeTags) Remove(_ context.Context, messageID, tag string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	out := f.w.tags[messageID][:0]
	for _, t := range f.w.tags[messageID] {
		if t != tag {
			out = append(out, t)
		}
	}
	f.w.tags[messageID] = out
	return nil
}

type fakePins struct{ w *world }

func (f fakePins) Pin(_ context.Context, p model.PinnedMessage) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.pins[p.ChannelID] = append(f.w.pins[p.ChannelID], p)
	return nil
}

func (f fakePins) Unpin(_ context.Context, channelID, messageID string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []model.PinnedMessage
	for _, p := range f.w.pins[channelID] {
		if p.MessageID != messageID {
			out = append(out, p)
		}
	}
	f.w.pins[channelID] = out
	return nil
}

func (f fakePins) ListPinned(_ context.Context, channelID string) ([]model.PinnedMessage, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]model.PinnedMessage(nil), f.w.pins[channelID]...), nil
}

type fakeSaves struct{ w *world }

func (f fakeSaves) Save(_ context.Context, _, messageID string, at time.Time) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.saved = append(f.w.saved, model.SavedMessage{MessageID: messageID, SavedAt: at})
	return nil
}

func (f fakeSaves) Unsave(_ context.Context, _, messageID string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []model.SavedMessage
	for _, s := range f.w.saved {
		if s.MessageID != messageID {
			out = append(out, s)
		}
	}
	f.w.saved = out
	return nil
}

func (f fakeSaves) List(context.Context, string) ([]model.SavedMessage, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]model.SavedMessage(nil), f.w.saved...), nil
}

type fakeDirects struct{ w *world }

func (f fakeDirects) ListThreads(context.Context, string) ([]model.DirectThread, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]model.DirectThread(nil), f.w.threads...), nil
}

func (f fakeDirects) GetOrCreateThread(_ context.Context, ids []string) (*model.DirectThread, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	ids = append([]string(nil), ids...)
	sort.Strings(ids)
	key := strings.Join(ids, ",")
	for _, d := range f.w.threads {
		if strings.Join(d.ParticipantIDs, ",") == key {
			d := d
			return &d, nil
		}
	}
	d := model.DirectThread{ID: "dm-" + key, ParticipantIDs: ids}
	f.w.threads = append(f.w.threads, d)
	return &d, nil
}

func (f fakeDirects) AddMessage(_ context.Context, threadID string, m *model.Message) (*model.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failCreate != nil {
		return nil, f.w.failCreate
	}
	out := *m
	out.CreatedAt = t0.Add(time.Duration(len(f.w.dms[threadID])) * time.Second)
	f.w.dms[threadID] = append(f.w.dms[threadID], out)
	return &out, nil
}

func (f fakeDirects) ListMessages(_ context.Context, threadID string, _ int) ([]model.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]model.Message(nil), f.w.dms[threadID]...), nil
}

func (f fakeDirects) MarkRead(context.Context, string, string, time.Time) error { return nil }

// fakeSubscriber записывает подписки и отписки.
type fakeSubscriber struct {
	mu       sync.Mutex
	err      error
	subs     []string
	unsubbed []string
	closed   bool
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channelID string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return func() {}, f.err
	}
	f.subs = append(f.subs, channelID)
	return func() {
		f.mu.Lock()
		f.unsubbed = append(f.unsubbed, channelID)
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// failingStream — поток событий, к которому нельзя подключиться.
type failingStream struct{}

func (failingStream) Open(context.Context, string) (realtime.Subscription, error) {
	return nil, errDown
}
