package gitsync

import (
	"context"
	"errors"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/gitsync"
	"github.com/conveyorhq/conveyor/internal/logging"
	pkgsync "github.com/conveyorhq/conveyor/pkg/sync"
)

// Engine synchronizes one workspace directory with its git remote.
type Engine interface {
	// IsRepo probes the workspace directory. It never caches: the
	// directory may be created or destroyed between calls.
	IsRepo() bool

	// Sync runs the full cycle: fetch, merge check, merge or
	// fast-forward, push. A conflicted merge is a successful result with
	// OutcomeConflicted, not an error.
	Sync(ctx context.Context) (*SyncResult, error)

	// Refresh fetches and reports status without mutating the branch,
	// index or working tree.
	Refresh(ctx context.Context) (*Status, error)

	// LocalStatus is Refresh without the network round trip.
	LocalStatus() (*Status, error)

	// Resolve settles one conflicted path with the content currently on
	// disk and returns the number of conflicts remaining.
	Resolve(path string, choice ResolutionChoice) (int, error)

	// CommitAll stages and commits every local change, finalizing a
	// pending merge once all conflicts are resolved.
	CommitAll(message string) (sha string, staged []string, err error)

	// Push uploads the current branch.
	Push(ctx context.Context) error

	// DiscardToRemote abandons all local-only commits and uncommitted
	// changes, returning the discarded commits.
	DiscardToRemote() ([]CommitInfo, error)

	// DiscardCommit drops one commit and its descendants from the
	// branch. Root commits are refused.
	DiscardCommit(sha string) ([]CommitInfo, error)

	// History lists recent commits, newest first, marking which are
	// already on the remote.
	History(limit int) ([]CommitInfo, error)

	// InitWorkspace clones or initializes the workspace if it is not a
	// repository yet.
	InitWorkspace(ctx context.Context) error

	// ReplaceFromRemote destroys the workspace and clones fresh.
	ReplaceFromRemote(ctx context.Context) error
}

// Re-exported result and option types.
type (
	SyncResult       = gitsync.SyncResult
	Status           = gitsync.Status
	Conflict         = gitsync.Conflict
	CommitInfo       = gitsync.CommitInfo
	FileChange       = gitsync.FileChange
	Outcome          = gitsync.Outcome
	ResolutionChoice = gitsync.ResolutionChoice
)

const (
	OutcomeUpToDate    = gitsync.OutcomeUpToDate
	OutcomeFastForward = gitsync.OutcomeFastForward
	OutcomePushed      = gitsync.OutcomePushed
	OutcomeConflicted  = gitsync.OutcomeConflicted
	OutcomePushFailed  = gitsync.OutcomePushFailed

	ResolveCurrent  = gitsync.ResolveCurrent
	ResolveIncoming = gitsync.ResolveIncoming
	ResolveManual   = gitsync.ResolveManual
)

// Error taxonomy, re-exported for errors.Is checks.
var (
	ErrNotARepository      = gitsync.ErrNotARepository
	ErrRemoteNotConfigured = gitsync.ErrRemoteNotConfigured
	ErrDiverged            = gitsync.ErrDiverged
	ErrUnresolvableState   = gitsync.ErrUnresolvableState
	ErrRootCommit          = gitsync.ErrRootCommit
)

// Contracts external collaborators implement.
type (
	SecretProvider = pkgsync.SecretProvider
	Broadcaster    = pkgsync.Broadcaster
	Installer      = pkgsync.Installer
)

// Option adjusts an Engine built by NewFromConfig.
type Option func(*gitsync.Synchronizer)

func WithLogger(log *logging.Logger) Option {
	return func(s *gitsync.Synchronizer) { s.WithLogger(log) }
}

func WithBroadcaster(bus Broadcaster) Option {
	return func(s *gitsync.Synchronizer) { s.WithBroadcaster(bus) }
}

func WithInstaller(installer Installer) Option {
	return func(s *gitsync.Synchronizer) { s.WithInstaller(installer) }
}

func WithAuthor(name, email string) Option {
	return func(s *gitsync.Synchronizer) { s.WithAuthor(name, email) }
}

// NewFromConfig builds an Engine from a git configuration map. This is the
// recommended constructor for external integrations.
//
// The map supports the following fields:
//   - "repo" (string, required): git remote URL
//   - "branch" (string, optional): branch to track, defaults to the
//     remote's default branch
//   - "credential" (string, optional): credential name resolved through
//     the provider on every use
//   - "exclude" ([]string, optional): glob patterns never staged by
//     commit-all
//
// provider may be nil for anonymously reachable remotes.
func NewFromConfig(path string, gitConfig map[string]any, provider SecretProvider, opts ...Option) (Engine, error) {
	repo, ok := gitConfig["repo"].(string)
	if !ok || repo == "" {
		return nil, errors.New("git config: 'repo' field is required")
	}

	cfg := config.Git{Repo: repo}

	if branch, ok := gitConfig["branch"].(string); ok && branch != "" {
		cfg.Branch = &branch
	}
	if credName, ok := gitConfig["credential"].(string); ok && credName != "" {
		cfg.Credentials = &config.SecretRef{Name: credName}
	}
	if patterns, ok := gitConfig["exclude"].([]string); ok {
		cfg.Exclude = patterns
	} else if raw, ok := gitConfig["exclude"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				cfg.Exclude = append(cfg.Exclude, s)
			}
		}
	}
	if _, err := cfg.ExcludeGlobs(); err != nil {
		return nil, err
	}

	sync := gitsync.New(path, cfg).
		WithAuthenticator(gitsync.NewAuthenticator(provider))
	for _, opt := range opts {
		opt(sync)
	}
	return sync, nil
}
