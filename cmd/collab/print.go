package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/collab/internal/composer"
	"github.com/collab/internal/model"
)

// printMessage печатает сообщение одной строкой: время, автор, текст и служебные пометки.
// html — текст в виде разметки Render вместо исходного.
func printMessage(w io.Writer, m model.Message, indent string, html bool) {
	body := m.Body
	if m.IsDeleted {
		body = "(deleted)"
	} else if html {
		body = composer.Render(body)
	}
	var marks []string
	if m.Topic != "" && m.Topic != model.DefaultTopic {
		marks = append(marks, "#"+m.Topic)
	}
	if m.Edited {
		marks = append(marks, "edited")
	}
	if m.ReplyCount > 0 {
		marks = append(marks, fmt.Sprintf("%d %s", m.ReplyCount, plural(m.ReplyCount, "reply", "replies")))
	}
	for _, r := range m.Reactions {
		marks = append(marks, fmt.Sprintf("%s×%d", r.Emoji, len(r.UserIDs)))
	}
	for _, t := range m.Tags {
		marks = append(marks, "["+t+"]")
	}
	for _, a := range attachments(m) {
		marks = append(marks, fmt.Sprintf("📎 %s (%s)", a.FileName, humanize.Bytes(uint64(a.FileSize))))
	}
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	line := fmt.Sprintf("%s%s  %-12s %s", indent, m.CreatedAt.Local().Format("15:04"), author, body)
	if len(marks) > 0 {
		line += "  · " + strings.Join(marks, " · ")
	}
	fmt.Fprintf(w, "%s  (%s, %s)\n", line, humanize.Time(m.CreatedAt), shortID(m.ID))
}

func attachments(m model.Message) []model.Attachment {
	var out []model.Attachment
	if m.Attachment != nil {
		out = append(out, *m.Attachment)
	}
	return append(out, m.Attachments...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
