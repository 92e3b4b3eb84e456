package gitsync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// Merge state lives in three places that must stay consistent:
//
//   - MERGE_HEAD inside the control directory records the incoming commit
//     and makes the next commit a two-parent merge commit, exactly as a
//     stock git client would read it.
//   - higher-stage index entries (1 ancestor, 2 ours, 3 theirs) are the
//     authoritative per-path conflict record.
//   - a side record holds the decoded conflict contents so status calls can
//     describe conflicts without re-running the merge.
//
// The side record is written before MERGE_HEAD and deleted after it, so a
// crash between the two writes never leaves a marker without a record.

const (
	mergeHeadFile  = "MERGE_HEAD"
	sideRecordFile = "conveyor-conflicts"
)

type sideRecord struct {
	Incoming  string     `json:"incoming"`
	Conflicts []Conflict `json:"conflicts"`
}

// enterMergeState records the conflicted merge against incoming. Each
// conflicted path loses its stage-0 entry and gains one entry per side that
// has content. The working tree is not touched.
func enterMergeState(repo *git.Repository, root string, incoming plumbing.Hash, conflicts []Conflict) error {
	idx, err := readIndex(repo)
	if err != nil {
		return err
	}

	for _, conflict := range conflicts {
		removeIndexEntries(idx, conflict.Path)
		addStageEntry(idx, conflict.Path, conflict.base, index.AncestorMode)
		addStageEntry(idx, conflict.Path, conflict.ours, index.OurMode)
		addStageEntry(idx, conflict.Path, conflict.theirs, index.TheirMode)
	}

	if err := writeIndex(repo, idx); err != nil {
		return err
	}

	record := sideRecord{Incoming: incoming.String(), Conflicts: conflicts}
	bs, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(controlDir(root), sideRecordFile), bs, 0600); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(controlDir(root), mergeHeadFile), []byte(incoming.String()+"\n"), 0600)
}

// mergeHead returns the commit recorded in MERGE_HEAD, if any.
func mergeHead(root string) (plumbing.Hash, bool, error) {
	bs, err := os.ReadFile(filepath.Join(controlDir(root), mergeHeadFile))
	if os.IsNotExist(err) {
		return plumbing.ZeroHash, false, nil
	} else if err != nil {
		return plumbing.ZeroHash, false, err
	}

	hash := plumbing.NewHash(strings.TrimSpace(string(bs)))
	if hash.IsZero() {
		return plumbing.ZeroHash, false, ErrUnresolvableState
	}
	return hash, true, nil
}

// inMergeState reports whether a conflicted merge is in progress. A marker
// without any higher-stage index entries is treated as stale, for example
// after a crash mid-resolution, and is healed by clearing the state.
func inMergeState(repo *git.Repository, root string) (plumbing.Hash, bool, error) {
	incoming, ok, err := mergeHead(root)
	if err != nil || !ok {
		return plumbing.ZeroHash, false, err
	}

	paths, err := conflictedPaths(repo)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	if len(paths) == 0 {
		if err := clearMergeState(root); err != nil {
			return plumbing.ZeroHash, false, err
		}
		return plumbing.ZeroHash, false, nil
	}

	return incoming, true, nil
}

// conflictedPaths lists paths that still carry more than one index entry.
func conflictedPaths(repo *git.Repository) ([]string, error) {
	idx, err := readIndex(repo)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, entry := range idx.Entries {
		counts[entry.Name]++
	}

	var paths []string
	for _, entry := range idx.Entries {
		if counts[entry.Name] > 1 && entry.Stage == index.OurMode {
			paths = append(paths, entry.Name)
		}
	}
	// Delete-versus-modify can leave a path without an "ours" stage.
	for name, n := range counts {
		if n > 1 && !containsString(paths, name) {
			paths = append(paths, name)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// loadSideRecord returns the persisted conflict descriptions. A missing or
// corrupt record yields an empty list rather than an error: the index is
// authoritative and status degrades to paths-only.
func loadSideRecord(root string) []Conflict {
	bs, err := os.ReadFile(filepath.Join(controlDir(root), sideRecordFile))
	if err != nil {
		return nil
	}
	var record sideRecord
	if err := json.Unmarshal(bs, &record); err != nil {
		return nil
	}
	return record.Conflicts
}

// clearMergeState removes the marker first so a crash in between leaves an
// orphaned side record, which is harmless, instead of an orphaned marker.
func clearMergeState(root string) error {
	if err := os.Remove(filepath.Join(controlDir(root), mergeHeadFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(filepath.Join(controlDir(root), sideRecordFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func removeIndexEntries(idx *index.Index, path string) {
	kept := idx.Entries[:0]
	for _, entry := range idx.Entries {
		if entry.Name != path {
			kept = append(kept, entry)
		}
	}
	idx.Entries = kept
}

func addStageEntry(idx *index.Index, path string, side *sideObject, stage index.Stage) {
	if side == nil {
		return
	}
	mode := side.mode
	if mode == filemode.Empty || mode == filemode.Dir {
		mode = filemode.Regular
	}
	idx.Entries = append(idx.Entries, &index.Entry{
		Name:  path,
		Hash:  side.hash,
		Mode:  mode,
		Stage: stage,
	})
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
