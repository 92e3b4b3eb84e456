package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	commitMessage string
	commitPush    bool
)

var commitCmd = &cobra.Command{
	Use:   "commit <workspace>",
	Short: "Stage and commit all local changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}

		sha, staged, err := sync.CommitAll(commitMessage)
		if err != nil {
			return err
		}
		fmt.Printf("committed %d file(s) as %s\n", len(staged), sha[:8])

		if commitPush {
			if err := sync.Push(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("pushed")
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "Workspace changes", "commit message")
	commitCmd.Flags().BoolVar(&commitPush, "push", false, "push after committing")
	rootCmd.AddCommand(commitCmd)
}
