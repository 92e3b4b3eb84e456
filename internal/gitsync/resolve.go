package gitsync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// ResolutionChoice records how the caller settled a conflict. It is carried
// for audit and progress reporting only: whatever is on disk at the path
// when Resolve runs is the resolution, no matter the choice.
type ResolutionChoice string

const (
	ResolveCurrent  ResolutionChoice = "current"
	ResolveIncoming ResolutionChoice = "incoming"
	ResolveManual   ResolutionChoice = "manual"
)

// resolveConflict marks one conflicted path as resolved using the file
// content currently on disk. A missing file resolves the conflict as a
// deletion. The higher-stage index entries for the path collapse into a
// single stage-0 entry (or none, for deletion). Returns the number of
// conflicted paths still outstanding; when it reaches zero the merge state
// marker stays in place so the next commit records both parents.
func resolveConflict(repo *git.Repository, root, path string) (int, error) {
	idx, err := readIndex(repo)
	if err != nil {
		return 0, err
	}

	conflicted := false
	for _, entry := range idx.Entries {
		if entry.Name == path && entry.Stage != 0 {
			conflicted = true
			break
		}
	}
	if !conflicted {
		return 0, fmt.Errorf("path %q is not conflicted", path)
	}

	abs := filepath.Join(root, filepath.FromSlash(path))
	removeIndexEntries(idx, path)

	if fileExists(abs) {
		content, err := os.ReadFile(abs)
		if err != nil {
			return 0, err
		}
		hash, err := writeBlob(repo.Storer, content)
		if err != nil {
			return 0, err
		}

		mode := filemode.Regular
		if info, err := os.Stat(abs); err == nil && info.Mode()&0111 != 0 {
			mode = filemode.Executable
		}
		idx.Entries = append(idx.Entries, &index.Entry{
			Name: path,
			Hash: hash,
			Mode: mode,
			Size: uint32(len(content)),
		})
	}

	if err := writeIndex(repo, idx); err != nil {
		return 0, err
	}

	remaining, err := conflictedPaths(repo)
	if err != nil {
		return 0, err
	}
	return len(remaining), nil
}
