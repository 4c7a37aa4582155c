package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/tasksync/cmd/syncctl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "syncctl",
		Short: "Control tool for the task manifest sync engine",
		Long:  "CLI tool for triggering syncs and inspecting branches, mappings, conflicts and errors",
	}

	rootCmd.AddCommand(commands.NewSyncCmd())
	rootCmd.AddCommand(commands.NewBranchesCmd())
	rootCmd.AddCommand(commands.NewMappingsCmd())
	rootCmd.AddCommand(commands.NewConflictsCmd())
	rootCmd.AddCommand(commands.NewErrorsCmd())
	rootCmd.AddCommand(commands.NewSessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
