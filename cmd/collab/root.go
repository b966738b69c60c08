package main

import (
	"os"

	"github.com/spf13/cobra"
)

const appName = "collab"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Collab - workspace messaging client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate(appName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("user", "", "member id (overrides COLLAB_USER_ID)")
	cmd.PersistentFlags().Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")

	cmd.AddCommand(
		NewWatchCmd(),
		NewSendCmd(),
		NewReactCmd(),
		NewPinCmd(),
		NewSaveCmd(),
		NewTagCmd(),
		NewChannelsCmd(),
		NewWhoCmd(),
		NewSearchCmd(),
		NewThreadCmd(),
		NewDMCmd(),
		NewAdminCmd(),
		NewMigrateCmd(),
	)
	return cmd
}
