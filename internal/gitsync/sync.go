package gitsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/logging"
	pkgsync "github.com/conveyorhq/conveyor/pkg/sync"
)

// Outcome is the terminal state of one sync run.
type Outcome int

const (
	OutcomeUpToDate Outcome = iota
	OutcomeFastForward
	OutcomePushed
	OutcomeConflicted
	OutcomePushFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeFastForward:
		return "fast-forward"
	case OutcomePushed:
		return "pushed"
	case OutcomeConflicted:
		return "conflicted"
	case OutcomePushFailed:
		return "push-failed"
	default:
		return "unknown"
	}
}

// SyncResult reports what one sync run did. Ahead and Behind are the counts
// observed right after the fetch, before any mutation. Conflicts is set only
// for OutcomeConflicted, which is a successful result: the conflict is
// recorded and waiting for resolution, not an engine failure.
type SyncResult struct {
	Outcome   Outcome    `json:"outcome"`
	Ahead     int        `json:"ahead"`
	Behind    int        `json:"behind"`
	Commit    string     `json:"commit,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Updated   RefUpdates `json:"-"`
	Err       error      `json:"-"`
}

// Synchronizer drives all git operations for one workspace. It assumes at
// most one in-flight mutating call per workspace; callers serialize.
type Synchronizer struct {
	root        string
	cfg         config.Git
	auth        *Authenticator
	log         *logging.Logger
	bus         pkgsync.Broadcaster
	installer   pkgsync.Installer
	authorName  string
	authorEmail string
}

func New(root string, cfg config.Git) *Synchronizer {
	return &Synchronizer{
		root:        root,
		cfg:         cfg,
		auth:        NewAuthenticator(nil),
		log:         logging.Discard(),
		bus:         pkgsync.NopBroadcaster{},
		authorName:  "conveyor",
		authorEmail: "sync@conveyor.invalid",
	}
}

func (s *Synchronizer) WithAuthenticator(auth *Authenticator) *Synchronizer {
	s.auth = auth
	return s
}

func (s *Synchronizer) WithLogger(log *logging.Logger) *Synchronizer {
	s.log = log
	return s
}

func (s *Synchronizer) WithBroadcaster(bus pkgsync.Broadcaster) *Synchronizer {
	s.bus = bus
	return s
}

func (s *Synchronizer) WithInstaller(installer pkgsync.Installer) *Synchronizer {
	s.installer = installer
	return s
}

func (s *Synchronizer) WithAuthor(name, email string) *Synchronizer {
	if name != "" {
		s.authorName = name
	}
	if email != "" {
		s.authorEmail = email
	}
	return s
}

// IsRepo probes the workspace on every call rather than caching: the
// directory can be created, replaced or deleted underneath the engine.
func (s *Synchronizer) IsRepo() bool {
	return isRepo(s.root)
}

// Sync runs the full pull-then-push cycle: fetch, merge check, merge or
// fast-forward, push. One progress event per state transition.
func (s *Synchronizer) Sync(ctx context.Context) (*SyncResult, error) {
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}

	// Local edits are committed up front so the merge check sees them and
	// a fast-forward can never clobber the working tree. Skipped while a
	// merge is pending: that commit belongs to conflict resolution.
	if _, merging, err := inMergeState(repo, s.root); err != nil {
		return nil, err
	} else if !merging {
		excludes, err := s.cfg.ExcludeGlobs()
		if err != nil {
			return nil, err
		}
		if _, staged, err := commitAll(repo, s.root, autoCommitMessage, s.signature(), excludes); err != nil {
			return nil, err
		} else if len(staged) > 0 {
			s.log.Debugf("committed %d local change(s) before sync", len(staged))
		}
	}

	s.event("log", "info", "fetching remote changes", nil)
	auth, err := s.auth.Method(ctx, s.cfg.Credentials)
	if err != nil {
		return nil, err
	}
	updated, err := fetch(ctx, repo, auth)
	if err != nil {
		return nil, err
	}

	branch, err := s.branch(repo)
	if err != nil {
		return nil, err
	}
	local, err := head(repo)
	if err != nil {
		return nil, err
	}

	s.event("log", "info", "checking for divergence", nil)
	ahead, behind, err := aheadBehind(repo, local, branch)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{Ahead: ahead, Behind: behind, Updated: updated}

	// A merge already in progress blocks everything until resolved.
	if _, merging, err := inMergeState(repo, s.root); err != nil {
		return nil, err
	} else if merging {
		result.Outcome = OutcomeConflicted
		result.Conflicts = loadSideRecord(s.root)
		s.event("complete", "warn", "merge conflicts pending resolution", conflictPathList(result.Conflicts))
		return result, nil
	}

	switch {
	case behind == 0 && ahead == 0:
		result.Outcome = OutcomeUpToDate
		s.event("complete", "info", "workspace is up to date", nil)
		return result, nil

	case behind > 0 && ahead == 0:
		if err := s.fastForward(repo, branch); err != nil {
			return nil, err
		}
		result.Outcome = OutcomeFastForward
		s.event("complete", "info", fmt.Sprintf("fast-forwarded %d commit(s)", behind), nil)
		return result, nil

	case behind > 0 && ahead > 0:
		outcome, err := s.merge(repo, branch, local)
		if err != nil {
			return nil, err
		}
		if len(outcome.Conflicts) > 0 {
			result.Outcome = OutcomeConflicted
			result.Conflicts = outcome.Conflicts
			s.event("complete", "warn",
				fmt.Sprintf("merge produced %d conflict(s)", len(outcome.Conflicts)),
				conflictPathList(outcome.Conflicts))
			return result, nil
		}
		result.Commit = outcome.TreeHash.String()
	}

	s.event("log", "info", "pushing local commits", nil)
	if err := push(ctx, repo, auth); err != nil {
		if errors.Is(err, ErrDiverged) {
			result.Outcome = OutcomePushFailed
			result.Err = err
			s.event("complete", "warn", "remote moved during sync, retry needed", nil)
			return result, err
		}
		return nil, err
	}

	pushed, err := head(repo)
	if err != nil {
		return nil, err
	}
	result.Outcome = OutcomePushed
	result.Commit = pushed.String()
	s.event("complete", "info", "sync complete", nil)
	return result, nil
}

// merge performs the three-way merge of the local branch against the remote
// tracking commit. A conflict-free merge is committed immediately with both
// parents; conflicts are persisted for interactive resolution and the
// working tree is left untouched.
func (s *Synchronizer) merge(repo *git.Repository, branch string, local plumbing.Hash) (*mergeOutcome, error) {
	tracking, err := trackingRef(repo, branch)
	if err != nil {
		return nil, ErrRemoteNotConfigured
	}
	remote := tracking.Hash()

	base, err := mergeBase(repo, local, remote)
	if err != nil {
		return nil, err
	}

	var baseTree *object.Tree
	if base != nil {
		baseTree, err = base.Tree()
		if err != nil {
			return nil, err
		}
	}
	oursTree, err := commitTreeOf(repo, local)
	if err != nil {
		return nil, err
	}
	theirsTree, err := commitTreeOf(repo, remote)
	if err != nil {
		return nil, err
	}

	outcome, err := detectConflicts(repo, baseTree, oursTree, theirsTree)
	if err != nil {
		return nil, err
	}

	if len(outcome.Conflicts) > 0 {
		if err := enterMergeState(repo, s.root, remote, outcome.Conflicts); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	message := fmt.Sprintf("Merge remote branch %s", branch)
	hash, err := commitTree(repo, outcome.TreeHash, []plumbing.Hash{local, remote}, message, s.signature())
	if err != nil {
		return nil, err
	}
	outcome.TreeHash = hash
	s.log.Infof("merged %s into %s as %s", remote, branch, hash)
	return outcome, nil
}

func (s *Synchronizer) fastForward(repo *git.Repository, branch string) error {
	tracking, err := trackingRef(repo, branch)
	if err != nil {
		return ErrRemoteNotConfigured
	}
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	return w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: tracking.Hash()})
}

// Refresh fetches and assembles the workspace status without mutating
// anything beyond the remote tracking refs.
func (s *Synchronizer) Refresh(ctx context.Context) (*Status, error) {
	if !isRepo(s.root) {
		return &Status{}, nil
	}
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}

	auth, err := s.auth.Method(ctx, s.cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if _, err := fetch(ctx, repo, auth); err != nil && !errors.Is(err, ErrRemoteNotConfigured) {
		return nil, err
	}

	return s.status(repo)
}

// LocalStatus is Refresh without the fetch, for offline status queries.
func (s *Synchronizer) LocalStatus() (*Status, error) {
	if !isRepo(s.root) {
		return &Status{}, nil
	}
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}
	return s.status(repo)
}

func (s *Synchronizer) status(repo *git.Repository) (*Status, error) {
	branch, err := s.branch(repo)
	if err != nil {
		return nil, err
	}
	local, err := head(repo)
	if err != nil {
		return nil, err
	}

	ahead, behind, err := aheadBehind(repo, local, branch)
	if err != nil {
		return nil, err
	}
	changes, err := fileChanges(repo)
	if err != nil {
		return nil, err
	}
	commits, err := history(repo, local, branch, historyLimit)
	if err != nil {
		return nil, err
	}

	status := &Status{
		IsRepo:  true,
		Branch:  branch,
		Ahead:   ahead,
		Behind:  behind,
		Changes: changes,
		History: commits,
	}

	if _, merging, err := inMergeState(repo, s.root); err != nil {
		return nil, err
	} else if merging {
		status.InMerge = true
		status.Conflicts = loadSideRecord(s.root)
		if len(status.Conflicts) == 0 {
			// Side record lost; degrade to paths from the index.
			paths, err := conflictedPaths(repo)
			if err != nil {
				return nil, err
			}
			for _, path := range paths {
				status.Conflicts = append(status.Conflicts, Conflict{Path: path})
			}
		}
	}

	return status, nil
}

const (
	historyLimit      = 50
	autoCommitMessage = "Workspace changes"
)

// Resolve marks one conflicted path as settled with whatever content is on
// disk. choice is recorded in the progress stream only.
func (s *Synchronizer) Resolve(path string, choice ResolutionChoice) (int, error) {
	repo, err := open(s.root)
	if err != nil {
		return 0, err
	}
	remaining, err := resolveConflict(repo, s.root, path)
	if err != nil {
		return 0, err
	}
	s.event("log", "info", fmt.Sprintf("resolved %s (%s), %d conflict(s) remaining", path, choice, remaining), nil)
	return remaining, nil
}

// CommitAll stages and commits every local change, finalizing a pending
// merge if all conflicts are resolved.
func (s *Synchronizer) CommitAll(message string) (string, []string, error) {
	repo, err := open(s.root)
	if err != nil {
		return "", nil, err
	}
	if paths, err := conflictedPaths(repo); err != nil {
		return "", nil, err
	} else if len(paths) > 0 {
		return "", nil, fmt.Errorf("cannot commit with %d unresolved conflict(s): %w", len(paths), ErrUnresolvableState)
	}

	excludes, err := s.cfg.ExcludeGlobs()
	if err != nil {
		return "", nil, err
	}
	hash, staged, err := commitAll(repo, s.root, message, s.signature(), excludes)
	if err != nil {
		return "", nil, err
	}
	return hash.String(), staged, nil
}

// Push uploads the current branch to the remote.
func (s *Synchronizer) Push(ctx context.Context) error {
	repo, err := open(s.root)
	if err != nil {
		return err
	}
	auth, err := s.auth.Method(ctx, s.cfg.Credentials)
	if err != nil {
		return err
	}
	return push(ctx, repo, auth)
}

// DiscardToRemote abandons all local-only work and returns the discarded
// commits.
func (s *Synchronizer) DiscardToRemote() ([]CommitInfo, error) {
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}
	return discardToRemote(repo, s.root)
}

// DiscardCommit drops the given commit and its descendants from the branch.
func (s *Synchronizer) DiscardCommit(sha string) ([]CommitInfo, error) {
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}
	return discardCommit(repo, plumbing.NewHash(sha))
}

// History lists recent commits, newest first, with pushed markers.
func (s *Synchronizer) History(limit int) ([]CommitInfo, error) {
	repo, err := open(s.root)
	if err != nil {
		return nil, err
	}
	branch, err := s.branch(repo)
	if err != nil {
		return nil, err
	}
	local, err := head(repo)
	if err != nil {
		return nil, err
	}
	return history(repo, local, branch, limit)
}

// InitWorkspace makes the workspace a repository: a clone when a remote is
// configured, a bare-minimum init otherwise. Existing repositories are left
// alone.
func (s *Synchronizer) InitWorkspace(ctx context.Context) error {
	if isRepo(s.root) {
		return nil
	}
	if s.cfg.Repo == "" {
		_, err := initRepo(s.root, s.branchName())
		return err
	}

	auth, err := s.auth.Method(ctx, s.cfg.Credentials)
	if err != nil {
		return err
	}
	_, err = cloneRepo(ctx, s.root, s.cfg.Repo, s.branchName(), auth)
	return err
}

// ReplaceFromRemote destroys the workspace content and clones fresh from the
// remote. If the fresh checkout carries a dependency manifest the installer
// runs; its failure is logged, never fatal.
func (s *Synchronizer) ReplaceFromRemote(ctx context.Context) error {
	if s.cfg.Repo == "" {
		return ErrRemoteNotConfigured
	}
	auth, err := s.auth.Method(ctx, s.cfg.Credentials)
	if err != nil {
		return err
	}

	if err := clearWorkspace(s.root); err != nil {
		return err
	}
	if _, err := cloneRepo(ctx, s.root, s.cfg.Repo, s.branchName(), auth); err != nil {
		return err
	}

	if s.installer != nil && hasManifest(s.root) {
		if err := s.installer.Install(ctx, s.root); err != nil {
			s.log.Warnf("dependency installation failed: %v", err)
		}
	}
	return nil
}

// branch resolves the working branch: configuration wins, then whatever HEAD
// points at.
func (s *Synchronizer) branch(repo *git.Repository) (string, error) {
	if s.cfg.Branch != nil && *s.cfg.Branch != "" {
		return *s.cfg.Branch, nil
	}
	return currentBranch(repo)
}

func (s *Synchronizer) branchName() string {
	if s.cfg.Branch != nil && *s.cfg.Branch != "" {
		return *s.cfg.Branch
	}
	return defaultBranch
}

func (s *Synchronizer) signature() object.Signature {
	return object.Signature{Name: s.authorName, Email: s.authorEmail, When: time.Now()}
}

func (s *Synchronizer) event(typ, level, message string, paths []string) {
	s.bus.Send(pkgsync.Event{Type: typ, Level: level, Message: message, Paths: paths})
}

func conflictPathList(conflicts []Conflict) []string {
	paths := make([]string, len(conflicts))
	for i, conflict := range conflicts {
		paths[i] = conflict.Path
	}
	return paths
}

func commitTreeOf(repo *git.Repository, hash plumbing.Hash) (*object.Tree, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}
