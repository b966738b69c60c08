package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collab/internal/model"
	"github.com/collab/internal/repository"
)

// NewAdminCmd — заведение участников, каналов и тем напрямую в БД.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create members, channels and topics",
	}

	member := &cobra.Command{
		Use:   "member <name>",
		Short: "Create a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := adminDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := repository.NewMemberRepository(db.pool)
			m := &model.Member{Name: args[0]}
			m.Email, _ = cmd.Flags().GetString("email")
			m.Role, _ = cmd.Flags().GetString("role")
			if m.Email != "" {
				existing, err := repo.GetByEmail(cmd.Context(), m.Email)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), existing.ID)
					return nil
				}
				if !errors.Is(err, repository.ErrNotFound) {
					return err
				}
			}
			if err := repo.Create(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
	member.Flags().String("email", "", "email")
	member.Flags().String("role", "", "role (default member)")

	channel := &cobra.Command{
		Use:   "channel <code> <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := adminDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			c := &model.Channel{Code: args[0], Name: args[1]}
			c.TeamID, _ = cmd.Flags().GetString("team")
			if err := repository.NewChannelRepository(db.pool).Create(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	channel.Flags().String("team", "", "team id")

	topic := &cobra.Command{
		Use:   "topic <channel-code> <name>",
		Short: "Add a topic to a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := adminDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := repository.NewChannelRepository(db.pool)
			// флаги участника здесь не нужны, подойдёт любой идентификатор
			c, err := repo.GetByCode(cmd.Context(), uuid.Nil.String(), args[0])
			if err != nil {
				return fmt.Errorf("channel %s: %w", args[0], err)
			}
			return repo.AddTopic(cmd.Context(), c.ID, args[1])
		},
	}

	disable := &cobra.Command{
		Use:   "disable <member-id>",
		Short: "Remove a member from the directory (--off to bring back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := adminDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			off, _ := cmd.Flags().GetBool("off")
			return repository.NewMemberRepository(db.pool).SetDisabled(cmd.Context(), args[0], !off)
		},
	}
	disable.Flags().Bool("off", false, "re-enable the member")

	cmd.AddCommand(member, channel, topic, disable)
	return cmd
}

func adminDB(cmd *cobra.Command) (*database, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openDatabase(cmd, cfg)
}

// NewMigrateCmd применяет встроенные миграции и выходит.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := adminDB(cmd)
			if err != nil {
				return err
			}
			db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
