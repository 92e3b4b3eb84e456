package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/gitsync"
)

var statusLocal bool

var statusCmd = &cobra.Command{
	Use:   "status <workspace>",
	Short: "Show divergence, local changes and pending conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}

		var status *gitsync.Status
		if statusLocal {
			status, err = sync.LocalStatus()
		} else {
			status, err = sync.Refresh(cmd.Context())
		}
		if err != nil {
			return err
		}

		if !status.IsRepo {
			fmt.Println("not a repository")
			return nil
		}

		fmt.Printf("branch: %s  ahead: %d  behind: %d\n", status.Branch, status.Ahead, status.Behind)
		if status.InMerge {
			fmt.Printf("merge in progress, %d conflict(s) unresolved\n", len(status.Conflicts))
		}

		if len(status.Changes) > 0 {
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Status", "Path")
			for _, change := range status.Changes {
				table.Append(change.Status, change.Path)
			}
			return table.Render()
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusLocal, "local", false, "skip the fetch, report local state only")
	rootCmd.AddCommand(statusCmd)
}
