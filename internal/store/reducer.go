package store

import (
	"github.com/collab/internal/model"
)

// Reduce применяет действие к состоянию и возвращает новое состояние.
// Функция чистая: s не изменяется, затронутые срезы и карты копируются,
// незатронутые разделяются между снимками.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case ChannelsLoaded:
		return reduceChannelsLoaded(s, a)
	case ChannelSelected:
		return reduceChannelSelected(s, a)
	case ChannelArchived:
		return reduceChannelArchived(s, a)
	case ChannelRestored:
		return reduceChannelRestored(s, a)
	case ChannelFlagsSet:
		return reduceChannelFlags(s, a)
	case ChannelRead:
		return reduceChannelRead(s, a)

	case MessagesLoaded:
		return reduceMessagesLoaded(s, a)
	case MessageAdded:
		return reduceMessageAdded(s, a)
	case MessageEdited:
		return reduceMessageEdited(s, a)
	case MessageDeleted:
		return reduceMessageDeleted(s, a)

	case ThreadOpened:
		if a.ParentID == "" {
			s.Thread = ThreadView{}
			return s
		}
		s.Thread = ThreadView{ParentID: a.ParentID, Loading: true}
		return s
	case ThreadRepliesLoaded:
		return reduceRepliesLoaded(s, a)
	case ThreadClosed:
		s.Thread = ThreadView{}
		return s
	case ReplyAdded:
		return reduceReplyAdded(s, a.Reply)

	case ReactionToggled:
		return reduceReaction(s, a)
	case TagAdded:
		return reduceTagAdded(s, a)
	case TagRemoved:
		return reduceTagRemoved(s, a)
	case PinToggled:
		return reducePin(s, a)
	case PinsLoaded:
		s.Pins = cloneMap(s.Pins)
		s.Pins[a.ChannelID] = cloneSlice(a.Pins)
		return s
	case SaveToggled:
		return reduceSave(s, a)
	case SavedLoaded:
		s.Saved = cloneSlice(a.Saved)
		return s

	case MembersLoaded:
		s.Members = cloneSlice(a.Members)
		return s
	case PresenceSnapshot:
		s.Presence = cloneMap(s.Presence)
		for _, r := range a.Records {
			s.Presence[r.UserID] = r
		}
		return s

	case FilterQuerySet:
		s.Filters.Query = a.Query
		return s
	case FilterCategorySet:
		s.Filters.Category = a.Category
		return s
	case FilterCriteriaSet:
		s.Filters.Criteria = a.Criteria
		return s
	case FiltersCleared:
		s.Filters = Filters{Topic: s.Filters.Topic}
		return s
	case TopicsLoaded:
		s.Topics = cloneMap(s.Topics)
		s.Topics[a.ChannelID] = cloneSlice(a.Topics)
		return s
	case TopicSelected:
		s.Filters.Topic = a.Topic
		return s

	case DirectThreadsLoaded:
		s.DirectThreads = cloneSlice(a.Threads)
		if _, ok := s.DirectThread(s.ActiveDirectID); !ok {
			s.ActiveDirectID = ""
		}
		return s
	case DirectThreadOpened:
		return reduceDirectOpened(s, a)
	case DirectThreadClosed:
		s.ActiveDirectID = ""
		return s
	case DirectMessageAdded:
		return reduceDirectMessage(s, a)

	case CallStarted:
		return reduceCallStarted(s, a)
	case CallJoined:
		return reduceCallJoined(s, a)
	case CallEnded:
		return reduceCallEnded(s, a)

	case ConnectivityChanged:
		s.Connectivity = a.Status
		s.ConnectivityReason = a.Reason
		if a.Status == ConnectivityLive {
			s.ConnectivityReason = ""
		}
		return s
	}
	return s
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// cloneMap всегда возвращает изменяемую карту, даже для nil.
func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func indexOfMessage(list []model.Message, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// updateMessage применяет fn к копии сообщения id в лентах и в открытом треде.
// fn не должна изменять срезы сообщения на месте, только заменять их.
func updateMessage(s State, id string, fn func(m *model.Message)) (State, bool) {
	found := false
	for ch, feed := range s.Feeds {
		i := indexOfMessage(feed, id)
		if i < 0 {
			continue
		}
		next := cloneSlice(feed)
		fn(&next[i])
		s.Feeds = cloneMap(s.Feeds)
		s.Feeds[ch] = next
		found = true
		break
	}
	if i := indexOfMessage(s.Thread.Replies, id); i >= 0 {
		next := cloneSlice(s.Thread.Replies)
		fn(&next[i])
		s.Thread.Replies = next
		found = true
	}
	return s, found
}

// normalize приводит реакции к каноническому порядку, а пустые коллекции к nil,
// чтобы переключения реакций и тегов возвращали сообщение к исходному виду.
func normalize(m model.Message) model.Message {
	m.Reactions = canonicalReactions(m.Reactions)
	if len(m.Tags) == 0 {
		m.Tags = nil
	}
	if len(m.Attachments) == 0 {
		m.Attachments = nil
	}
	return m
}
