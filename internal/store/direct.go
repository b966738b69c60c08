package store

import (
	"github.com/collab/internal/model"
)

func indexOfDirect(list []model.DirectThread, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func reduceDirectOpened(s State, a DirectThreadOpened) State {
	i := indexOfDirect(s.DirectThreads, a.ThreadID)
	if i < 0 {
		return s
	}
	s.ActiveDirectID = a.ThreadID
	if s.DirectThreads[i].UnreadCount != 0 {
		s.DirectThreads = cloneSlice(s.DirectThreads)
		s.DirectThreads[i].UnreadCount = 0
	}
	return s
}

// reduceDirectMessage добавляет сообщение в личную переписку. Как и в каналах,
// вставка идемпотентна по идентификатору. Треды и теги в переписке не поддерживаются.
func reduceDirectMessage(s State, a DirectMessageAdded) State {
	i := indexOfDirect(s.DirectThreads, a.ThreadID)
	if i < 0 {
		return s
	}
	d := s.DirectThreads[i]
	if indexOfMessage(d.Messages, a.Message.ID) >= 0 {
		return s
	}
	m := normalize(a.Message)
	m.ParentID = nil
	m.Tags = nil
	m.ReplyCount = 0

	msgs := make([]model.Message, 0, len(d.Messages)+1)
	msgs = append(msgs, d.Messages...)
	d.Messages = append(msgs, m)
	if m.CreatedAt.After(d.LastActivityAt) {
		d.LastActivityAt = m.CreatedAt
	}
	if s.ActiveDirectID != d.ID && m.AuthorID != s.UserID {
		d.UnreadCount++
	}
	s.DirectThreads = cloneSlice(s.DirectThreads)
	s.DirectThreads[i] = d
	return s
}

func reduceCallStarted(s State, a CallStarted) State {
	if a.Call.ID == "" {
		return s
	}
	if s.Call != nil && s.Call.ID == a.Call.ID {
		return s
	}
	call := a.Call
	call.Participants = cloneSlice(a.Call.Participants)
	if call.Status == "" {
		call.Status = model.CallStatusRinging
	}
	s.Call = &call
	return s
}

func reduceCallJoined(s State, a CallJoined) State {
	if s.Call == nil || s.Call.ID != a.CallID || s.Call.Status == model.CallStatusEnded {
		return s
	}
	call := *s.Call
	for _, id := range call.Participants {
		if id == a.UserID {
			if call.Status == model.CallStatusActive {
				return s
			}
			call.Status = model.CallStatusActive
			s.Call = &call
			return s
		}
	}
	parts := make([]string, 0, len(call.Participants)+1)
	parts = append(parts, call.Participants...)
	call.Participants = append(parts, a.UserID)
	call.Status = model.CallStatusActive
	s.Call = &call
	return s
}

func reduceCallEnded(s State, a CallEnded) State {
	if s.Call == nil || s.Call.ID != a.CallID || s.Call.Status == model.CallStatusEnded {
		return s
	}
	call := *s.Call
	at := a.At
	call.Status = model.CallStatusEnded
	call.EndedAt = &at
	s.Call = &call
	return s
}
