package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/gitsync"
	"github.com/conveyorhq/conveyor/internal/logging"
)

type logLevel enumflag.Flag

const (
	logDebug logLevel = iota
	logInfo
	logWarn
	logError
)

var logLevelIds = map[logLevel][]string{
	logDebug: {"debug"},
	logInfo:  {"info"},
	logWarn:  {"warn", "warning"},
	logError: {"error"},
}

var (
	configFile string
	level      = logInfo
	jsonLogs   bool

	conf *config.Root
	log  *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "conveyor",
		Short: "Conveyor keeps workspace directories in sync with their git remotes",
		Long: `Conveyor is the git synchronization engine of a workflow automation
backend. It fetches, merges, resolves and pushes workspace repositories
without ever executing the git binary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			format := logging.FormatText
			if jsonLogs {
				format = logging.FormatJSON
			}
			log = logging.NewLogger(logging.Config{Level: int(level), Format: format})

			var err error
			conf, err = config.ParseFile(configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "conveyor.yml", "configuration file")
	rootCmd.PersistentFlags().Var(
		enumflag.New(&level, "log-level", logLevelIds, enumflag.EnumCaseInsensitive),
		"log-level", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func workspace(name string) (*config.Workspace, error) {
	w, ok := conf.Workspaces[name]
	if !ok {
		return nil, fmt.Errorf("unknown workspace %q", name)
	}
	return w, nil
}

func synchronizer(name string) (*gitsync.Synchronizer, error) {
	w, err := workspace(name)
	if err != nil {
		return nil, err
	}

	var authorName, authorEmail string
	if conf.Service != nil {
		authorName, authorEmail = conf.Service.AuthorName, conf.Service.AuthorEmail
	}
	return gitsync.New(w.Path, w.Git).
		WithLogger(log).
		WithAuthor(authorName, authorEmail), nil
}
