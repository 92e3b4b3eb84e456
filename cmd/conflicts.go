package cmd

import (
	"fmt"

	"github.com/akedrou/textdiff"
	"github.com/spf13/cobra"
)

var showDiff bool

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <workspace>",
	Short: "List unresolved merge conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}
		status, err := sync.LocalStatus()
		if err != nil {
			return err
		}

		if !status.InMerge {
			fmt.Println("no merge in progress")
			return nil
		}

		for _, conflict := range status.Conflicts {
			fmt.Println(conflict.Path)
			if !showDiff {
				continue
			}
			base := ""
			if conflict.Base != nil {
				base = *conflict.Base
			}
			fmt.Print(textdiff.Unified(conflict.Path+" (base)", conflict.Path+" (current)", base, conflict.Current))
			fmt.Print(textdiff.Unified(conflict.Path+" (base)", conflict.Path+" (incoming)", base, conflict.Incoming))
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().BoolVarP(&showDiff, "diff", "d", false, "show diffs against the common ancestor")
	rootCmd.AddCommand(conflictsCmd)
}
