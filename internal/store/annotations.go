package store

import (
	"sort"

	"github.com/collab/internal/model"
)

// toggleReaction возвращает новый список реакций. Записи упорядочены по emoji,
// UserIDs внутри записи отсортированы, пустой список — nil. При таком порядке
// двойное переключение восстанавливает исходный список в точности.
func toggleReaction(list []model.Reaction, emoji, userID string) []model.Reaction {
	out := make([]model.Reaction, 0, len(list)+1)
	i := 0
	for ; i < len(list) && list[i].Emoji < emoji; i++ {
		out = append(out, list[i])
	}
	if i < len(list) && list[i].Emoji == emoji {
		if users := toggleUser(list[i].UserIDs, userID); len(users) > 0 {
			out = append(out, model.Reaction{Emoji: emoji, UserIDs: users})
		}
		i++
	} else {
		out = append(out, model.Reaction{Emoji: emoji, UserIDs: []string{userID}})
	}
	out = append(out, list[i:]...)
	if len(out) == 0 {
		return nil
	}
	return out
}

// toggleUser убирает userID из отсортированного списка или вставляет его на своё место.
func toggleUser(users []string, userID string) []string {
	j := sort.SearchStrings(users, userID)
	if j < len(users) && users[j] == userID {
		out := make([]string, 0, len(users)-1)
		out = append(out, users[:j]...)
		return append(out, users[j+1:]...)
	}
	out := make([]string, 0, len(users)+1)
	out = append(out, users[:j]...)
	out = append(out, userID)
	return append(out, users[j:]...)
}

// canonicalReactions приводит реакции к порядку toggleReaction, не трогая исходные срезы.
func canonicalReactions(list []model.Reaction) []model.Reaction {
	out := make([]model.Reaction, 0, len(list))
	for _, r := range list {
		if len(r.UserIDs) == 0 {
			continue
		}
		users := append([]string(nil), r.UserIDs...)
		sort.Strings(users)
		out = append(out, model.Reaction{Emoji: r.Emoji, UserIDs: users})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Emoji < out[b].Emoji })
	if len(out) == 0 {
		return nil
	}
	return out
}

func reduceReaction(s State, a ReactionToggled) State {
	if a.Emoji == "" || a.UserID == "" {
		return s
	}
	s, _ = updateMessage(s, a.MessageID, func(m *model.Message) {
		if m.IsDeleted {
			return
		}
		m.Reactions = toggleReaction(m.Reactions, a.Emoji, a.UserID)
	})
	return s
}

func reduceTagAdded(s State, a TagAdded) State {
	if !model.ValidTag(a.Tag) {
		return s
	}
	s, _ = updateMessage(s, a.MessageID, func(m *model.Message) {
		if m.HasTag(a.Tag) {
			return
		}
		tags := make([]string, 0, len(m.Tags)+1)
		tags = append(tags, m.Tags...)
		m.Tags = append(tags, a.Tag)
	})
	return s
}

func reduceTagRemoved(s State, a TagRemoved) State {
	s, _ = updateMessage(s, a.MessageID, func(m *model.Message) {
		if !m.HasTag(a.Tag) {
			return
		}
		var tags []string
		for _, t := range m.Tags {
			if t != a.Tag {
				tags = append(tags, t)
			}
		}
		m.Tags = tags
	})
	return s
}

func reducePin(s State, a PinToggled) State {
	pins := s.Pins[a.ChannelID]
	next := make([]model.PinnedMessage, 0, len(pins)+1)
	removed := false
	for _, p := range pins {
		if p.MessageID == a.MessageID {
			removed = true
			continue
		}
		next = append(next, p)
	}
	if !removed {
		next = append(next, model.PinnedMessage{
			ChannelID: a.ChannelID,
			MessageID: a.MessageID,
			PinnedBy:  a.UserID,
			PinnedAt:  a.At,
		})
	}
	s.Pins = cloneMap(s.Pins)
	if len(next) == 0 {
		delete(s.Pins, a.ChannelID)
	} else {
		s.Pins[a.ChannelID] = next
	}
	return s
}

func reduceSave(s State, a SaveToggled) State {
	next := make([]model.SavedMessage, 0, len(s.Saved)+1)
	removed := false
	for _, sv := range s.Saved {
		if sv.MessageID == a.MessageID {
			removed = true
			continue
		}
		next = append(next, sv)
	}
	if !removed {
		next = append(next, model.SavedMessage{MessageID: a.MessageID, ChannelID: a.ChannelID, SavedAt: a.At})
	}
	if len(next) == 0 {
		next = nil
	}
	s.Saved = next
	return s
}
