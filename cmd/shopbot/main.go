package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/shopbot/core/buildinfo"
)

func main() {
	root := &cobra.Command{
		Use:           "shopbot",
		Short:         "Telegram shop bot for digital subscriptions",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config.yaml (defaults to $CONFIG_PATH or config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(rosterCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "shopbot", buildinfo.String())
		},
	}
}
