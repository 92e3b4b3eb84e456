package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/gitsync"
)

var discardSHA string

var discardCmd = &cobra.Command{
	Use:   "discard <workspace>",
	Short: "Throw away local commits",
	Long: `Without flags, resets the workspace to the remote tracking commit,
abandoning every local-only commit and uncommitted change. With --commit,
drops that commit and its descendants only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}

		var discarded []gitsync.CommitInfo
		if discardSHA != "" {
			discarded, err = sync.DiscardCommit(discardSHA)
		} else {
			discarded, err = sync.DiscardToRemote()
		}
		if err != nil {
			return err
		}

		fmt.Printf("discarded %d commit(s)\n", len(discarded))
		for _, c := range discarded {
			subject, _, _ := strings.Cut(c.Message, "\n")
			fmt.Printf("  %s %s\n", c.SHA[:8], subject)
		}
		return nil
	},
}

func init() {
	discardCmd.Flags().StringVar(&discardSHA, "commit", "", "discard this commit and its descendants instead")
	rootCmd.AddCommand(discardCmd)
}
