package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log <workspace>",
	Short: "List recent commits with their push state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, err := synchronizer(args[0])
		if err != nil {
			return err
		}
		commits, err := sync.History(logLimit)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("SHA", "When", "Author", "Pushed", "Message")
		for _, c := range commits {
			pushed := ""
			if c.IsPushed {
				pushed = "yes"
			}
			subject, _, _ := strings.Cut(c.Message, "\n")
			table.Append(c.SHA[:8], time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339), c.Author, pushed, subject)
		}
		return table.Render()
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "maximum commits to list")
	rootCmd.AddCommand(logCmd)
}
