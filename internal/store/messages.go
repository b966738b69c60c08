package store

import (
	"sort"
	"time"

	"github.com/collab/internal/model"
)

func reduceMessagesLoaded(s State, a MessagesLoaded) State {
	feed := make([]model.Message, 0, len(a.Messages))
	seen := make(map[string]struct{}, len(a.Messages))
	for _, m := range a.Messages {
		if m.IsReply() {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		feed = append(feed, normalize(m))
	}
	// живые сообщения, пришедшие позже загруженного окна, сохраняются
	var newest time.Time
	if len(feed) > 0 {
		newest = feed[len(feed)-1].CreatedAt
	}
	for _, m := range s.Feeds[a.ChannelID] {
		if _, dup := seen[m.ID]; !dup && m.CreatedAt.After(newest) {
			feed = append(feed, m)
		}
	}
	s.Feeds = cloneMap(s.Feeds)
	s.Feeds[a.ChannelID] = feed
	return s
}

// reduceMessageAdded вставляет сообщение в ленту канала. Вставка идемпотентна по
// идентификатору: эхо собственного сообщения из realtime-канала ничего не меняет.
func reduceMessageAdded(s State, a MessageAdded) State {
	m := normalize(a.Message)
	if m.IsReply() {
		return reduceReplyAdded(s, m)
	}
	feed := s.Feeds[m.ChannelID]
	if indexOfMessage(feed, m.ID) >= 0 {
		return s
	}
	next := make([]model.Message, 0, len(feed)+1)
	next = append(next, feed...)
	next = append(next, m)
	s.Feeds = cloneMap(s.Feeds)
	s.Feeds[m.ChannelID] = next
	return touchChannel(s, m)
}

// reduceReplyAdded учитывает ответ в счётчике родителя ровно один раз и добавляет его
// в тред, только если тред этого родителя открыт. В ленту ответы не попадают никогда.
func reduceReplyAdded(s State, r model.Message) State {
	parent := r.Parent()
	if parent == "" {
		return s
	}
	r = normalize(r)

	if _, counted := s.CountedReplies[parent][r.ID]; !counted {
		s = markCounted(s, parent, r.ID, !r.IsDeleted)
		if !r.IsDeleted {
			s = adjustReplyCount(s, parent, +1)
		}
	}

	if s.Thread.ParentID == parent && indexOfMessage(s.Thread.Replies, r.ID) < 0 {
		next := make([]model.Message, 0, len(s.Thread.Replies)+1)
		next = append(next, s.Thread.Replies...)
		s.Thread.Replies = append(next, r)
	}
	return s
}

func markCounted(s State, parent, replyID string, live bool) State {
	s.CountedReplies = cloneMap(s.CountedReplies)
	set := cloneMap(s.CountedReplies[parent])
	set[replyID] = live
	s.CountedReplies[parent] = set
	return s
}

func adjustReplyCount(s State, parent string, delta int) State {
	s, _ = updateMessage(s, parent, func(m *model.Message) {
		m.ReplyCount += delta
		if m.ReplyCount < 0 {
			m.ReplyCount = 0
		}
	})
	return s
}

func reduceMessageEdited(s State, a MessageEdited) State {
	s, _ = updateMessage(s, a.MessageID, func(m *model.Message) {
		if m.IsDeleted {
			return
		}
		m.Body = a.Body
		m.Edited = true
	})
	return s
}

// reduceMessageDeleted — мягкое удаление: сообщение остаётся на месте с пустым телом.
// Удаление ответа вычитает его из счётчика родителя не более одного раза.
func reduceMessageDeleted(s State, a MessageDeleted) State {
	parent := a.ParentID
	if cur, ok := s.FindMessage(a.MessageID); ok {
		if parent == "" {
			parent = cur.Parent()
		}
	}
	s, _ = updateMessage(s, a.MessageID, func(m *model.Message) {
		m.IsDeleted = true
		m.Body = ""
		m.Attachment = nil
		m.Attachments = nil
		m.Reactions = nil
	})
	if parent == "" {
		return s
	}
	if live, counted := s.CountedReplies[parent][a.MessageID]; counted && !live {
		return s
	}
	s = markCounted(s, parent, a.MessageID, false)
	return adjustReplyCount(s, parent, -1)
}

// reduceRepliesLoaded сливает загруженные ответы с пришедшими за время загрузки.
// Загруженные ответы уже учтены в счётчике, пришедшем с сервера, поэтому счётчик не меняется.
func reduceRepliesLoaded(s State, a ThreadRepliesLoaded) State {
	if s.Thread.ParentID == "" || s.Thread.ParentID != a.ParentID {
		return s
	}
	merged := make([]model.Message, 0, len(s.Thread.Replies)+len(a.Replies))
	merged = append(merged, s.Thread.Replies...)
	for _, r := range a.Replies {
		if r.Parent() != a.ParentID || indexOfMessage(merged, r.ID) >= 0 {
			continue
		}
		merged = append(merged, normalize(r))
		if _, counted := s.CountedReplies[a.ParentID][r.ID]; !counted {
			s = markCounted(s, a.ParentID, r.ID, !r.IsDeleted)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	s.Thread.Replies = merged
	s.Thread.Loading = false
	return s
}
