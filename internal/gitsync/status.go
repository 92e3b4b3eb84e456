package gitsync

import (
	"sort"

	"github.com/go-git/go-git/v5"
)

// FileChange is one working-tree difference relative to HEAD.
type FileChange struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Status is the full workspace picture assembled by a refresh: divergence
// from the remote, uncommitted local changes, recent history and any merge
// still waiting on conflict resolution.
type Status struct {
	IsRepo    bool         `json:"is_repo"`
	Branch    string       `json:"branch,omitempty"`
	Ahead     int          `json:"ahead"`
	Behind    int          `json:"behind"`
	Changes   []FileChange `json:"changes,omitempty"`
	InMerge   bool         `json:"in_merge"`
	Conflicts []Conflict   `json:"conflicts,omitempty"`
	History   []CommitInfo `json:"history,omitempty"`
}

// fileChanges lists paths that differ between HEAD, index and working tree.
func fileChanges(repo *git.Repository) ([]FileChange, error) {
	w, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := w.Status()
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for path, st := range status {
		name := changeName(st)
		if name == "" {
			continue
		}
		changes = append(changes, FileChange{Path: path, Status: name})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func changeName(st *git.FileStatus) string {
	code := st.Worktree
	if code == git.Unmodified {
		code = st.Staging
	}
	switch code {
	case git.Unmodified:
		return ""
	case git.Untracked, git.Added:
		return "added"
	case git.Deleted:
		return "deleted"
	case git.Renamed:
		return "renamed"
	case git.Copied:
		return "copied"
	case git.UpdatedButUnmerged:
		return "conflicted"
	default:
		return "modified"
	}
}
