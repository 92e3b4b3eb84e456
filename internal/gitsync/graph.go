package gitsync

import (
	"errors"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit graph analysis: ahead/behind counting, history listings and
// merge-base resolution. All walks operate on the commit DAG with explicit
// inclusion/exclusion sets instead of assuming linear history.

// CommitInfo is one entry of a history listing.
type CommitInfo struct {
	SHA       string   `json:"sha"`
	Message   string   `json:"message"`
	Author    string   `json:"author"`
	Timestamp int64    `json:"timestamp"` // Unix seconds, UTC
	Parents   []string `json:"parents"`
	IsPushed  bool     `json:"is_pushed"`
}

// reachable returns the set of commits reachable from start, inclusive.
func reachable(repo *git.Repository, start plumbing.Hash) (map[plumbing.Hash]bool, error) {
	seen := make(map[plumbing.Hash]bool)
	if start.IsZero() {
		return seen, nil
	}

	stack := []plumbing.Hash{start}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true

		commit, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		stack = append(stack, commit.ParentHashes...)
	}

	return seen, nil
}

// countExcluding counts commits reachable from start that are not in
// exclude, without descending past excluded commits.
func countExcluding(repo *git.Repository, start plumbing.Hash, exclude map[plumbing.Hash]bool) ([]plumbing.Hash, error) {
	var found []plumbing.Hash
	if start.IsZero() {
		return found, nil
	}

	seen := make(map[plumbing.Hash]bool)
	stack := []plumbing.Hash{start}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] || exclude[h] {
			continue
		}
		seen[h] = true
		found = append(found, h)

		commit, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		stack = append(stack, commit.ParentHashes...)
	}

	return found, nil
}

// aheadBehind counts commits reachable from local but not remote (ahead) and
// from remote but not local (behind). A missing remote tracking ref yields
// (0, 0): a workspace that has never fetched is reported as up to date
// rather than broken, so status stays usable before the first sync.
func aheadBehind(repo *git.Repository, local plumbing.Hash, branch string) (int, int, error) {
	remote, err := trackingRef(repo, branch)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	if local == remote.Hash() {
		return 0, 0, nil
	}

	remoteSet, err := reachable(repo, remote.Hash())
	if err != nil {
		return 0, 0, err
	}
	ahead, err := countExcluding(repo, local, remoteSet)
	if err != nil {
		return 0, 0, err
	}

	localSet, err := reachable(repo, local)
	if err != nil {
		return 0, 0, err
	}
	behind, err := countExcluding(repo, remote.Hash(), localSet)
	if err != nil {
		return 0, 0, err
	}

	return len(ahead), len(behind), nil
}

// aheadCommits lists the commits reachable from local but not from the
// remote tracking ref, newest first. Used for the audit output of the
// destructive discard operations.
func aheadCommits(repo *git.Repository, local plumbing.Hash, branch string) ([]CommitInfo, error) {
	remote, err := trackingRef(repo, branch)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrRemoteNotConfigured
	}
	if err != nil {
		return nil, err
	}

	remoteSet, err := reachable(repo, remote.Hash())
	if err != nil {
		return nil, err
	}
	hashes, err := countExcluding(repo, local, remoteSet)
	if err != nil {
		return nil, err
	}

	return describeCommits(repo, hashes, nil)
}

// history walks from head in commit-time order, newest first, up to limit
// entries. Each commit is marked pushed when it is reachable from the remote
// tracking ref; with no tracking ref every commit reports unpushed.
func history(repo *git.Repository, headHash plumbing.Hash, branch string, limit int) ([]CommitInfo, error) {
	if headHash.IsZero() {
		return nil, nil
	}

	var pushed map[plumbing.Hash]bool
	if remote, err := trackingRef(repo, branch); err == nil {
		pushed, err = reachable(repo, remote.Hash())
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, err
	}

	headCommit, err := repo.CommitObject(headHash)
	if err != nil {
		return nil, err
	}

	var out []CommitInfo
	iter := object.NewCommitIterCTime(headCommit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		out = append(out, commitInfo(c, pushed))
		if limit > 0 && len(out) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, err
	}

	return out, nil
}

// mergeBase finds the nearest common ancestor of ours and theirs. Unrelated
// histories yield nil without error; the caller merges against an empty
// base.
func mergeBase(repo *git.Repository, ours, theirs plumbing.Hash) (*object.Commit, error) {
	a, err := repo.CommitObject(ours)
	if err != nil {
		return nil, err
	}
	b, err := repo.CommitObject(theirs)
	if err != nil {
		return nil, err
	}

	bases, err := a.MergeBase(b)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		return nil, nil
	}
	return bases[0], nil
}

// describeCommits builds CommitInfo values for hashes, sorted newest first.
func describeCommits(repo *git.Repository, hashes []plumbing.Hash, pushed map[plumbing.Hash]bool) ([]CommitInfo, error) {
	out := make([]CommitInfo, 0, len(hashes))
	for _, h := range hashes {
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		out = append(out, commitInfo(c, pushed))
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp > out[j-1].Timestamp; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func commitInfo(c *object.Commit, pushed map[plumbing.Hash]bool) CommitInfo {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return CommitInfo{
		SHA:       c.Hash.String(),
		Message:   c.Message,
		Author:    c.Author.Name,
		Timestamp: c.Author.When.UTC().Unix(),
		Parents:   parents,
		IsPushed:  pushed[c.Hash],
	}
}
