package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/collab/internal/mention"
)

// NewSendCmd отправляет сообщение через компоновщик: ответ, правка, тема и вложения.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <channel> <text...>",
		Short: "Post a message",
		Long: `Post a message to a channel.

Examples:
  collab send GA001 "Hello @Maria"
  collab send GA001 "see thread" --reply-to 5f1c...
  collab send GA001 "fixed typo" --edit 5f1c...
  collab send GA001 "" --file report.pdf`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			ch, err := a.channel(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			replyTo, _ := cmd.Flags().GetString("reply-to")
			editOf, _ := cmd.Flags().GetString("edit")
			topic, _ := cmd.Flags().GetString("topic")
			files, _ := cmd.Flags().GetStringArray("file")

			c := a.composer()
			switch {
			case editOf != "":
				m, err := a.repos.messages.GetByID(ctx, editOf)
				if err != nil {
					return fmt.Errorf("edit %s: %w", editOf, err)
				}
				c.Edit(*m)
				c.SetText(text, len([]rune(text)))
			case replyTo != "":
				c.ReplyTo(replyTo)
				c.Type(text)
			default:
				c.Type(text)
			}
			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				att, err := c.Upload(ctx, ch.ID, filepath.Base(f), data)
				if err != nil {
					return fmt.Errorf("upload %s: %w", f, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s -> %s\n", att.FileName, att.URL)
			}

			if err := c.Submit(ctx, ch.ID, topic, a.sess.Send); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "sent")
			for _, m := range mention.Resolve(text, a.st.Snapshot().Members) {
				fmt.Fprintf(out, "  mentioned %s\n", m.Name)
			}
			if show, _ := cmd.Flags().GetBool("suggest"); show {
				for _, s := range a.sess.Suggest(ctx, text) {
					fmt.Fprintf(out, "  suggestion (%s): %s\n", s.Kind, s.Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("reply-to", "", "reply in the thread of this message")
	cmd.Flags().String("edit", "", "replace the body of this message")
	cmd.Flags().String("topic", "", "topic of a new message")
	cmd.Flags().StringArray("file", nil, "attach a file (repeatable)")
	cmd.Flags().Bool("suggest", false, "print classifier suggestions for the text")
	return cmd
}
