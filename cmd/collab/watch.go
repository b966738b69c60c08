package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/store"
)

// NewWatchCmd — живая лента канала: история, затем новые сообщения, ответы, правки
// и смена состояния соединения. Пока команда работает, клиент шлёт heartbeat.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <channel>",
		Short: "Follow a channel in real time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ch, err := a.channel(args[0])
			if err != nil {
				return err
			}
			html, _ := cmd.Flags().GetBool("html")
			out := cmd.OutOrStdout()

			var (
				mu      sync.Mutex
				printed = map[string]bool{}
				ready   bool
			)
			unsub := a.st.Subscribe(func(act store.Action, s store.State) {
				mu.Lock()
				defer mu.Unlock()
				if !ready {
					return
				}
				switch v := act.(type) {
				case store.MessageAdded:
					if v.Message.ChannelID != ch.ID || printed[v.Message.ID] {
						return
					}
					printed[v.Message.ID] = true
					printMessage(out, v.Message, "", html)
				case store.ReplyAdded:
					if v.Reply.ChannelID != ch.ID || printed[v.Reply.ID] {
						return
					}
					printed[v.Reply.ID] = true
					printMessage(out, v.Reply, "    ↳ ", html)
				case store.MessageEdited:
					if m, ok := s.FindMessage(v.MessageID); ok {
						printMessage(out, m, "  ✎ ", html)
					}
				case store.ConnectivityChanged:
					if v.Status == store.ConnectivityDegraded {
						fmt.Fprintf(out, "-- connection degraded: %s\n", v.Reason)
					} else {
						fmt.Fprintln(out, "-- live")
					}
				}
			})
			defer unsub()

			if err := a.sess.SelectChannel(cmd.Context(), ch.ID); err != nil {
				return err
			}
			mu.Lock()
			fmt.Fprintf(out, "# %s (%s)\n", ch.Name, ch.Code)
			for _, m := range a.sess.Visible() {
				printed[m.ID] = true
				printMessage(out, m, "", html)
			}
			if s := a.st.Snapshot(); s.Connectivity == store.ConnectivityDegraded {
				fmt.Fprintf(out, "-- connection degraded: %s\n", s.ConnectivityReason)
			}
			ready = true
			mu.Unlock()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return a.tracker.Run(ctx) })
			err = g.Wait()
			logger.Info("watch stopped")
			return err
		},
	}
	cmd.Flags().Bool("html", false, "print message bodies rendered as HTML")
	return cmd
}
