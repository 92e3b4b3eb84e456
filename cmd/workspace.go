package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init <workspace>",
	Short: "Clone or initialize a workspace repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}
		if sync.IsRepo() {
			fmt.Println("already a repository")
			return nil
		}
		if err := sync.InitWorkspace(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("workspace initialized")
		return nil
	},
}

var replaceCmd = &cobra.Command{
	Use:   "replace <workspace>",
	Short: "Destroy the workspace and clone fresh from the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}
		if err := sync.ReplaceFromRemote(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("workspace replaced from remote")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(replaceCmd)
}
