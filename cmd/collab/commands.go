package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/collab/internal/filter"
	"github.com/collab/internal/model"
)

// messageCmd — команда над одним сообщением: открывает приложение и вызывает run.
func messageCmd(use, short string, nargs int, run func(cmd *cobra.Command, a *app, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		},
	}
}

func NewReactCmd() *cobra.Command {
	return messageCmd("react <message> <emoji>", "Toggle a reaction", 2, func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.sess.ToggleReaction(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "toggled %s on %s\n", args[1], shortID(args[0]))
		return nil
	})
}

func NewPinCmd() *cobra.Command {
	return messageCmd("pin <message>", "Pin or unpin a message in its channel", 1, func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.sess.TogglePin(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pin toggled on %s\n", shortID(args[0]))
		return nil
	})
}

func NewSaveCmd() *cobra.Command {
	cmd := messageCmd("save [message]", "Save or unsave a message; without arguments list saved messages", 0, func(cmd *cobra.Command, a *app, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, s := range a.st.Snapshot().Saved {
				fmt.Fprintf(out, "%s  saved %s\n", s.MessageID, humanize.Time(s.SavedAt))
			}
			return nil
		}
		if err := a.sess.ToggleSave(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "save toggled on %s\n", shortID(args[0]))
		return nil
	})
	cmd.Args = cobra.MaximumNArgs(1)
	return cmd
}

func NewTagCmd() *cobra.Command {
	tags := make([]string, len(model.Tags))
	for i, t := range model.Tags {
		tags[i] = string(t)
	}
	cmd := messageCmd("tag <message> <tag>", "Tag a message ("+strings.Join(tags, ", ")+")", 2, func(cmd *cobra.Command, a *app, args []string) error {
		if remove, _ := cmd.Flags().GetBool("remove"); remove {
			return a.sess.RemoveTag(cmd.Context(), args[0], args[1])
		}
		return a.sess.AddTag(cmd.Context(), args[0], args[1])
	})
	cmd.Flags().Bool("remove", false, "remove the tag instead")
	return cmd
}

// NewChannelsCmd — список каналов и действия над ними.
func NewChannelsCmd() *cobra.Command {
	cmd := messageCmd("channels", "List channels", 0, func(cmd *cobra.Command, a *app, _ []string) error {
		st := a.st.Snapshot()
		out := cmd.OutOrStdout()
		cached := map[string]bool{}
		if a.cache != nil {
			ids, err := a.cache.CachedChannels()
			if err != nil {
				return err
			}
			for _, id := range ids {
				cached[id] = true
			}
		}
		for _, c := range st.Channels {
			offline := ""
			if cached[c.ID] {
				offline = "  (available offline)"
			}
			fmt.Fprintf(out, "%-8s %-24s %s%s\n", c.Code, channelLabel(c), humanize.Time(c.LastActivityAt), offline)
		}
		if len(st.Archived) > 0 {
			fmt.Fprintln(out, "archived:")
			for _, c := range st.Archived {
				fmt.Fprintf(out, "  %-8s %s\n", c.Code, c.Name)
			}
		}
		return nil
	})
	cmd.AddCommand(
		channelAction("archive", "Move a channel to the archive", func(cmd *cobra.Command, a *app, id string) error {
			return a.sess.Archive(cmd.Context(), id)
		}),
		channelAction("restore", "Restore an archived channel", func(cmd *cobra.Command, a *app, id string) error {
			return a.sess.Restore(cmd.Context(), id)
		}),
		channelAction("favorite", "Mark a channel as favorite (--off to clear)", func(cmd *cobra.Command, a *app, id string) error {
			off, _ := cmd.Flags().GetBool("off")
			return a.sess.SetFavorite(cmd.Context(), id, !off)
		}),
		channelAction("mute", "Mute a channel (--off to unmute)", func(cmd *cobra.Command, a *app, id string) error {
			off, _ := cmd.Flags().GetBool("off")
			return a.sess.SetMuted(cmd.Context(), id, !off)
		}),
	)
	return cmd
}

func channelAction(name, short string, run func(cmd *cobra.Command, a *app, channelID string) error) *cobra.Command {
	cmd := messageCmd(name+" <channel>", short, 1, func(cmd *cobra.Command, a *app, args []string) error {
		ch, err := a.channel(args[0])
		if err != nil {
			return err
		}
		if err := run(cmd, a, ch.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, ch.Code)
		return nil
	})
	cmd.Flags().Bool("off", false, "clear the flag")
	return cmd
}

func channelLabel(c model.Channel) string {
	label := c.Name
	if c.Favorite {
		label = "★ " + label
	}
	if c.Muted {
		label += " (muted)"
	}
	if c.UnreadCount > 0 {
		label += fmt.Sprintf(" [%d]", c.UnreadCount)
	}
	return label
}

// NewWhoCmd печатает статус присутствия всех участников.
func NewWhoCmd() *cobra.Command {
	return messageCmd("who", "Show member presence", 0, func(cmd *cobra.Command, a *app, _ []string) error {
		if _, err := a.tracker.Poll(cmd.Context()); err != nil {
			return err
		}
		st := a.st.Snapshot()
		members := append([]model.Member(nil), st.Members...)
		sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
		out := cmd.OutOrStdout()
		for _, m := range members {
			seen := "never"
			if rec, ok := st.Presence[m.ID]; ok {
				seen = humanize.Time(rec.LastActiveAt)
			}
			fmt.Fprintf(out, "%-8s %-24s %s\n", a.sess.Presence(m.ID), m.Name, seen)
		}
		return nil
	})
}

// NewSearchCmd — лента канала после фильтров.
func NewSearchCmd() *cobra.Command {
	cmd := messageCmd("search <channel> [text]", "Filter a channel feed", 0, func(cmd *cobra.Command, a *app, args []string) error {
		ch, err := a.channel(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := a.sess.SelectChannel(ctx, ch.ID); err != nil {
			return err
		}
		if len(args) > 1 {
			a.sess.Search(strings.Join(args[1:], " "))
		}
		category, _ := cmd.Flags().GetString("category")
		cat, err := filter.ParseCategory(category)
		if err != nil {
			return err
		}
		a.sess.SetCategory(cat)
		topic, _ := cmd.Flags().GetString("topic")
		a.sess.SelectTopic(topic)

		var c filter.Criteria
		c.Author, _ = cmd.Flags().GetString("author")
		c.HasAttachments, _ = cmd.Flags().GetBool("has-attachments")
		c.HasMentions, _ = cmd.Flags().GetBool("has-mentions")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			from := time.Now().Add(-since)
			c.From = &from
		}
		if until, _ := cmd.Flags().GetDuration("until"); until > 0 {
			to := time.Now().Add(-until)
			c.To = &to
		}
		a.sess.SetCriteria(c)

		out := cmd.OutOrStdout()
		visible := a.sess.Visible()
		for _, m := range visible {
			printMessage(out, m, "", false)
		}
		fmt.Fprintf(out, "%s of %s messages\n", humanize.Comma(int64(len(visible))), humanize.Comma(int64(len(a.st.Snapshot().Feed(ch.ID)))))
		return nil
	})
	cmd.Args = cobra.MinimumNArgs(1)
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		category, _ := cmd.Flags().GetString("category")
		_, err := filter.ParseCategory(category)
		return err
	}
	cmd.Flags().String("category", "", "attachments|images|mentions|saved")
	cmd.Flags().String("topic", "", "only messages with this topic")
	cmd.Flags().String("author", "", "substring of the author's display name")
	cmd.Flags().Bool("has-attachments", false, "only messages with attachments")
	cmd.Flags().Bool("has-mentions", false, "only messages with mentions")
	cmd.Flags().Duration("since", 0, "only messages newer than this (e.g. 24h)")
	cmd.Flags().Duration("until", 0, "only messages older than this (e.g. 1h)")
	return cmd
}

// NewThreadCmd печатает сообщение и ответы на него.
func NewThreadCmd() *cobra.Command {
	return messageCmd("thread <message>", "Show a thread", 1, func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		parent, err := a.repos.messages.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.sess.OpenThread(ctx, parent.ID); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printMessage(out, *parent, "", false)
		for _, r := range a.st.Snapshot().Thread.Replies {
			printMessage(out, r, "    ↳ ", false)
		}
		return nil
	})
}

// NewDMCmd открывает личную переписку с участниками и, если задан --send, отправляет в неё сообщение.
func NewDMCmd() *cobra.Command {
	cmd := messageCmd("dm <member...>", "Open a direct conversation", 0, func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		ids := make([]string, 0, len(args))
		for _, ref := range args {
			m, err := a.member(ref)
			if err != nil {
				return err
			}
			ids = append(ids, m.ID)
		}
		threadID, err := a.sess.OpenDirect(ctx, ids...)
		if err != nil {
			return err
		}
		if text, _ := cmd.Flags().GetString("send"); text != "" {
			if err := a.sess.SendDirect(ctx, threadID, text); err != nil {
				return err
			}
		}
		d, _ := a.st.Snapshot().DirectThread(threadID)
		out := cmd.OutOrStdout()
		for _, m := range d.Messages {
			printMessage(out, m, "", false)
		}
		return nil
	})
	cmd.Args = cobra.MinimumNArgs(1)
	cmd.Flags().String("send", "", "send this text to the conversation")
	return cmd
}
