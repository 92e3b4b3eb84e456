package gitsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/gobwas/glob"
)

// stageAll stages every working-tree change except paths matched by an
// exclude pattern. Deletions are staged too. Returns the staged paths.
func stageAll(repo *git.Repository, excludes []glob.Glob) ([]string, error) {
	w, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	status, err := w.Status()
	if err != nil {
		return nil, err
	}

	var staged []string
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		if matchesAny(excludes, path) {
			continue
		}
		if _, err := w.Add(path); err != nil {
			return nil, fmt.Errorf("stage %s: %w", path, err)
		}
		staged = append(staged, path)
	}
	return staged, nil
}

func matchesAny(patterns []glob.Glob, path string) bool {
	for _, pattern := range patterns {
		if pattern.Match(path) {
			return true
		}
	}
	return false
}

// commitAll stages everything and commits with the system author identity.
// When a merge is in progress the commit gets the merge head as a second
// parent, finalizing the merge, and the merge state is cleared afterwards.
// With nothing staged and no merge pending it is a no-op returning the
// current head.
func commitAll(repo *git.Repository, root, message string, author object.Signature, excludes []glob.Glob) (plumbing.Hash, []string, error) {
	staged, err := stageAll(repo, excludes)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}

	incoming, merging, err := mergeHead(root)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}

	if len(staged) == 0 && !merging {
		current, err := head(repo)
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		return current, nil, nil
	}

	opts := &git.CommitOptions{
		Author:            &author,
		AllowEmptyCommits: merging,
	}
	if merging {
		current, err := head(repo)
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		opts.Parents = []plumbing.Hash{current, incoming}
	}

	w, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	hash, err := w.Commit(message, opts)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}

	if merging {
		if err := clearMergeState(root); err != nil {
			return plumbing.ZeroHash, nil, err
		}
	}
	return hash, staged, nil
}

// commitTree writes a commit object for an already-built tree and advances
// the branch ref and working tree to it. Used for automatic merge commits
// where the tree came out of the merge rather than the index.
func commitTree(repo *git.Repository, treeHash plumbing.Hash, parents []plumbing.Hash, message string, author object.Signature) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:       author,
		Committer:    author,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	obj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	branch, err := currentBranch(repo)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	name := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(name, hash)); err != nil {
		return plumbing.ZeroHash, err
	}

	w, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: hash}); err != nil {
		return plumbing.ZeroHash, err
	}
	return hash, nil
}

// push uploads the current branch. A rejection because the remote moved on
// since the last fetch surfaces as ErrDiverged so callers can retry with a
// pull; anything else network-shaped becomes a TransportError. On success
// the remote tracking ref advances to the pushed commit, which push alone
// does not do.
func push(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	if _, err := repo.Remote(remoteName); err != nil {
		return ErrRemoteNotConfigured
	}

	branch, err := currentBranch(repo)
	if err != nil {
		return err
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	})
	switch {
	case err == nil, err == git.NoErrAlreadyUpToDate:
	case isNonFastForward(err):
		return ErrDiverged
	default:
		return &TransportError{Op: "push", Err: err}
	}

	local, err := head(repo)
	if err != nil {
		return err
	}
	tracking := plumbing.NewRemoteReferenceName(remoteName, branch)
	return repo.Storer.SetReference(plumbing.NewHashReference(tracking, local))
}

func isNonFastForward(err error) bool {
	return err != nil && strings.Contains(err.Error(), "non-fast-forward")
}

// discardToRemote hard-resets branch and working tree to the remote
// tracking commit, abandoning local-only commits and any merge in progress.
// The abandoned commits are returned for audit. Equal local and remote is a
// successful no-op.
func discardToRemote(repo *git.Repository, root string) ([]CommitInfo, error) {
	branch, err := currentBranch(repo)
	if err != nil {
		return nil, err
	}
	tracking, err := trackingRef(repo, branch)
	if err != nil {
		return nil, ErrRemoteNotConfigured
	}

	local, err := head(repo)
	if err != nil {
		return nil, err
	}
	if local == tracking.Hash() {
		return nil, clearMergeState(root)
	}

	discarded, err := aheadCommits(repo, local, branch)
	if err != nil {
		return nil, err
	}

	w, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: tracking.Hash()}); err != nil {
		return nil, err
	}
	if err := clearMergeState(root); err != nil {
		return nil, err
	}
	return discarded, nil
}

// discardCommit rewinds the branch to the first parent of target, dropping
// target and every descendant of it on the branch. Root commits have no
// parent to rewind to and are refused, leaving refs untouched.
func discardCommit(repo *git.Repository, target plumbing.Hash) ([]CommitInfo, error) {
	commit, err := repo.CommitObject(target)
	if err != nil {
		return nil, err
	}
	if commit.NumParents() == 0 {
		return nil, ErrRootCommit
	}
	newHead := commit.ParentHashes[0]

	oldHead, err := head(repo)
	if err != nil {
		return nil, err
	}
	keep, err := reachable(repo, newHead)
	if err != nil {
		return nil, err
	}
	dropped, err := countExcluding(repo, oldHead, keep)
	if err != nil {
		return nil, err
	}

	onBranch := false
	for _, hash := range dropped {
		if hash == target {
			onBranch = true
			break
		}
	}
	if !onBranch {
		return nil, fmt.Errorf("commit %s is not on the current branch", target)
	}

	discarded, err := describeCommits(repo, dropped, nil)
	if err != nil {
		return nil, err
	}

	w, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: newHead}); err != nil {
		return nil, err
	}
	return discarded, nil
}
