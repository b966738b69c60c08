package model

import (
	"path/filepath"
	"strings"
	"time"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

// Attachment — ссылка на файл в blob-хранилище.
type Attachment struct {
	URL         string      `json:"url"`
	FileName    string      `json:"file_name"`
	FileSize    int64       `json:"file_size,omitempty"`
	ContentType ContentType `json:"content_type"`
}

var imageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// IsImage — вложение считается изображением по типу либо по расширению имени.
func (a Attachment) IsImage() bool {
	if a.ContentType == ContentTypeImage {
		return true
	}
	name := a.FileName
	if name == "" {
		name = a.URL
	}
	return imageExt[strings.ToLower(filepath.Ext(name))]
}

// Message — пост в канале. ParentID != nil означает ответ в треде:
// такой пост живёт только в коллекции ответов родителя, не в ленте.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	ParentID    *string      `json:"parent_id,omitempty"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name,omitempty"`
	Body        string       `json:"body"`
	Attachment  *Attachment  `json:"attachment,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Edited      bool         `json:"edited"`
	IsDeleted   bool         `json:"is_deleted"`
	ReplyCount  int          `json:"reply_count"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Topic       string       `json:"topic,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// IsReply сообщает, является ли сообщение ответом в треде.
func (m *Message) IsReply() bool {
	return m.ParentID != nil && *m.ParentID != ""
}

// Parent возвращает идентификатор родителя или "".
func (m *Message) Parent() string {
	if m.ParentID == nil {
		return ""
	}
	return *m.ParentID
}

// AllAttachments возвращает основное вложение (если есть) и затем дополнительные по порядку.
func (m *Message) AllAttachments() []Attachment {
	if m.Attachment == nil {
		return m.Attachments
	}
	out := make([]Attachment, 0, 1+len(m.Attachments))
	out = append(out, *m.Attachment)
	return append(out, m.Attachments...)
}

// HasTag сообщает, помечено ли сообщение тегом.
func (m *Message) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Reaction — эмодзи и множество отреагировавших пользователей.
// Пустое множество не хранится: запись удаляется вместе с последним пользователем.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

// Has сообщает, есть ли userID среди отреагировавших.
func (r Reaction) Has(userID string) bool {
	for _, id := range r.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PinnedMessage — закреплённое сообщение канала.
type PinnedMessage struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	PinnedBy  string    `json:"pinned_by"`
	PinnedAt  time.Time `json:"pinned_at"`
}

// SavedMessage — сообщение, сохранённое пользователем (по всем каналам).
type SavedMessage struct {
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id"`
	SavedAt   time.Time `json:"saved_at"`
}
