package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/gitsync"
)

var takeIncoming bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <workspace> <path>",
	Short: "Mark a conflicted file as resolved with its on-disk content",
	Long: `Marks one conflict as settled. By default the file's current on-disk
content is the resolution; pass --incoming to overwrite the file with the
remote side first.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		sync, err := synchronizer(name)
		if err != nil {
			return err
		}

		choice := gitsync.ResolveManual
		if takeIncoming {
			choice = gitsync.ResolveIncoming
			if err := writeIncoming(name, path, sync); err != nil {
				return err
			}
		}

		remaining, err := sync.Resolve(path, choice)
		if err != nil {
			return err
		}
		fmt.Printf("resolved %s, %d conflict(s) remaining\n", path, remaining)
		if remaining == 0 {
			fmt.Println(`all conflicts resolved; run "conveyor commit" to finalize the merge`)
		}
		return nil
	},
}

func writeIncoming(name, path string, sync *gitsync.Synchronizer) error {
	status, err := sync.LocalStatus()
	if err != nil {
		return err
	}
	w, err := workspace(name)
	if err != nil {
		return err
	}
	for _, conflict := range status.Conflicts {
		if conflict.Path != path {
			continue
		}
		abs := filepath.Join(w.Path, filepath.FromSlash(path))
		if conflict.Incoming == "" {
			// Deleted on the remote side.
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		}
		return os.WriteFile(abs, []byte(conflict.Incoming), 0644)
	}
	return fmt.Errorf("path %q is not conflicted", path)
}

func init() {
	resolveCmd.Flags().BoolVar(&takeIncoming, "incoming", false, "take the remote side's content")
	rootCmd.AddCommand(resolveCmd)
}
