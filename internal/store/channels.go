package store

import (
	"github.com/collab/internal/model"
)

func indexOfChannel(list []model.Channel, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func reduceChannelsLoaded(s State, a ChannelsLoaded) State {
	archived := make([]model.Channel, 0, len(a.Archived))
	seen := make(map[string]struct{}, len(a.Active)+len(a.Archived))
	for _, c := range a.Archived {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		c.Archived = true
		archived = append(archived, c)
	}
	active := make([]model.Channel, 0, len(a.Active))
	for _, c := range a.Active {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		c.Archived = false
		active = append(active, c)
	}
	s.Channels = active
	s.Archived = archived
	if indexOfChannel(active, s.ActiveChannelID) < 0 {
		s = leaveActiveChannel(s, "")
	}
	return s
}

// leaveActiveChannel переключает активный канал на next (или ни на какой) и закрывает тред.
func leaveActiveChannel(s State, next string) State {
	s.ActiveChannelID = next
	s.Thread = ThreadView{}
	s.Filters.Topic = ""
	return s
}

// Переключение закрывает тред всегда; неизвестный или архивный канал
// активным не становится.
func reduceChannelSelected(s State, a ChannelSelected) State {
	s.Thread = ThreadView{}
	i := indexOfChannel(s.Channels, a.ChannelID)
	if i < 0 {
		return s
	}
	s = leaveActiveChannel(s, a.ChannelID)
	s.ActiveDirectID = ""
	if s.Channels[i].UnreadCount != 0 {
		s.Channels = cloneSlice(s.Channels)
		s.Channels[i].UnreadCount = 0
	}
	return s
}

// Канал находится ровно в одном из списков: архивирование и восстановление
// переносят его целиком, повторное действие ничего не меняет.
func reduceChannelArchived(s State, a ChannelArchived) State {
	i := indexOfChannel(s.Channels, a.ChannelID)
	if i < 0 {
		return s
	}
	ch := s.Channels[i]
	ch.Archived = true

	active := make([]model.Channel, 0, len(s.Channels)-1)
	active = append(active, s.Channels[:i]...)
	active = append(active, s.Channels[i+1:]...)
	s.Channels = active

	archived := make([]model.Channel, 0, len(s.Archived)+1)
	archived = append(archived, s.Archived...)
	s.Archived = append(archived, ch)

	if s.ActiveChannelID == a.ChannelID {
		next := ""
		if len(active) > 0 {
			next = active[0].ID
		}
		s = leaveActiveChannel(s, next)
	}
	return s
}

func reduceChannelRestored(s State, a ChannelRestored) State {
	i := indexOfChannel(s.Archived, a.ChannelID)
	if i < 0 {
		return s
	}
	ch := s.Archived[i]
	ch.Archived = false

	archived := make([]model.Channel, 0, len(s.Archived)-1)
	archived = append(archived, s.Archived[:i]...)
	archived = append(archived, s.Archived[i+1:]...)
	s.Archived = archived

	active := make([]model.Channel, 0, len(s.Channels)+1)
	active = append(active, s.Channels...)
	s.Channels = append(active, ch)
	return s
}

func reduceChannelFlags(s State, a ChannelFlagsSet) State {
	apply := func(c *model.Channel) {
		if a.Favorite != nil {
			c.Favorite = *a.Favorite
		}
		if a.Muted != nil {
			c.Muted = *a.Muted
		}
	}
	if i := indexOfChannel(s.Channels, a.ChannelID); i >= 0 {
		s.Channels = cloneSlice(s.Channels)
		apply(&s.Channels[i])
	} else if i := indexOfChannel(s.Archived, a.ChannelID); i >= 0 {
		s.Archived = cloneSlice(s.Archived)
		apply(&s.Archived[i])
	}
	return s
}

func reduceChannelRead(s State, a ChannelRead) State {
	i := indexOfChannel(s.Channels, a.ChannelID)
	if i < 0 || s.Channels[i].UnreadCount == 0 {
		return s
	}
	s.Channels = cloneSlice(s.Channels)
	s.Channels[i].UnreadCount = 0
	return s
}

// touchChannel учитывает новое сообщение в канале: время активности и непрочитанные.
func touchChannel(s State, m model.Message) State {
	i := indexOfChannel(s.Channels, m.ChannelID)
	if i < 0 {
		return s
	}
	s.Channels = cloneSlice(s.Channels)
	c := &s.Channels[i]
	if m.CreatedAt.After(c.LastActivityAt) {
		c.LastActivityAt = m.CreatedAt
	}
	if m.ChannelID != s.ActiveChannelID && m.AuthorID != s.UserID {
		c.UnreadCount++
	}
	return s
}
