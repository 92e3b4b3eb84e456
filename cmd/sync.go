package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <workspace>",
	Short: "Fetch, merge and push one workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}
		if err := sync.InitWorkspace(cmd.Context()); err != nil {
			return err
		}

		result, err := sync.Sync(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("outcome: %s (ahead %d, behind %d)\n", result.Outcome, result.Ahead, result.Behind)
		for _, conflict := range result.Conflicts {
			fmt.Printf("  conflict: %s\n", conflict.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
