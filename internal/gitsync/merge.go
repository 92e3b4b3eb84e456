package gitsync

import (
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Three-way tree merge. Detection is side-effect-free on the working tree:
// no conflict markers are ever written to workspace files. Merged tree
// objects are registered in the object store (content-addressed, so repeat
// runs are idempotent), but no ref and no index entry moves until the pull
// orchestration confirms the outcome.

// Conflict describes one file the merge could not resolve automatically.
// Current and Incoming are always present as strings; an empty string means
// the file was deleted on that side. A nil Base means the file has no common
// ancestor version (added independently on both sides).
type Conflict struct {
	Path     string  `json:"path"`
	Current  string  `json:"current"`
	Incoming string  `json:"incoming"`
	Base     *string `json:"base"`

	base, ours, theirs *sideObject
}

// sideObject is the object a conflicted path resolves to on one side of the
// merge. nil means the path is absent on that side.
type sideObject struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

func (o *sideObject) isTree() bool {
	return o != nil && o.mode == filemode.Dir
}

func sameObject(a, b *sideObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.hash == b.hash && a.mode == b.mode
}

// mergeOutcome is either a conflict-free merged tree or a list of file
// conflicts, never both.
type mergeOutcome struct {
	TreeHash  plumbing.Hash
	Conflicts []Conflict
}

// detectConflicts merges base, ours and theirs at tree level. base may be
// nil for unrelated histories; every path present on either side is then
// merged against an empty ancestor.
func detectConflicts(repo *git.Repository, base, ours, theirs *object.Tree) (*mergeOutcome, error) {
	if base == nil {
		base = &object.Tree{}
	}

	entries, conflicted, err := mergeTrees(repo, base, ours, theirs, "")
	if err != nil {
		return nil, err
	}

	if len(conflicted) == 0 {
		hash, err := writeTree(repo, entries)
		if err != nil {
			return nil, err
		}
		return &mergeOutcome{TreeHash: hash}, nil
	}

	// The tree merge reports conflicts at the level it gave up on, which
	// may be a directory. Descend to file granularity so that callers get
	// actionable per-file conflicts.
	var conflicts []Conflict
	for _, path := range conflicted {
		expanded, err := expandConflict(repo, base, ours, theirs, path)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, expanded...)
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })

	return &mergeOutcome{Conflicts: conflicts}, nil
}

// mergeTrees merges one directory level. It returns the merged entries for
// this level and the paths it could not resolve. Subtrees are merged
// recursively, treating an absent directory as empty, so only genuine file
// content conflicts, delete-versus-modify and file-versus-directory type
// changes surface as conflicted paths.
func mergeTrees(repo *git.Repository, base, ours, theirs *object.Tree, prefix string) ([]object.TreeEntry, []string, error) {
	baseEntries := entryMap(base)
	ourEntries := entryMap(ours)
	theirEntries := entryMap(theirs)

	names := make(map[string]bool, len(ourEntries)+len(theirEntries)+len(baseEntries))
	for name := range baseEntries {
		names[name] = true
	}
	for name := range ourEntries {
		names[name] = true
	}
	for name := range theirEntries {
		names[name] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var merged []object.TreeEntry
	var conflicted []string

	for _, name := range sorted {
		path := joinPath(prefix, name)
		b := baseEntries[name]
		o := ourEntries[name]
		t := theirEntries[name]

		switch {
		case sameObject(o, t):
			if o != nil {
				merged = append(merged, treeEntry(name, o))
			}
		case sameObject(o, b):
			if t != nil {
				merged = append(merged, treeEntry(name, t))
			}
		case sameObject(t, b):
			if o != nil {
				merged = append(merged, treeEntry(name, o))
			}
		case treeOrAbsent(b) && treeOrAbsent(o) && treeOrAbsent(t):
			subBase, err := subtree(repo, b)
			if err != nil {
				return nil, nil, err
			}
			subOurs, err := subtree(repo, o)
			if err != nil {
				return nil, nil, err
			}
			subTheirs, err := subtree(repo, t)
			if err != nil {
				return nil, nil, err
			}

			subEntries, subConflicts, err := mergeTrees(repo, subBase, subOurs, subTheirs, path)
			if err != nil {
				return nil, nil, err
			}
			conflicted = append(conflicted, subConflicts...)

			if len(subConflicts) == 0 && len(subEntries) > 0 {
				hash, err := writeTree(repo, subEntries)
				if err != nil {
					return nil, nil, err
				}
				merged = append(merged, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
			}
		default:
			conflicted = append(conflicted, path)
		}
	}

	return merged, conflicted, nil
}

// expandConflict resolves the objects at path on all three sides and drills
// down until it bottoms out at blobs, emitting one Conflict per file. Paths
// whose three-way comparison turns out resolvable after all (identical on
// all sides, or changed on one side only) are dropped: the tree merge may
// over-report at parent directories when only a descendant differs.
func expandConflict(repo *git.Repository, base, ours, theirs *object.Tree, path string) ([]Conflict, error) {
	b, err := resolveAt(base, path)
	if err != nil {
		return nil, err
	}
	o, err := resolveAt(ours, path)
	if err != nil {
		return nil, err
	}
	t, err := resolveAt(theirs, path)
	if err != nil {
		return nil, err
	}

	if sameObject(o, t) || sameObject(o, b) || sameObject(t, b) {
		return nil, nil
	}

	if !b.isTree() && !o.isTree() && !t.isTree() {
		conflict, err := fileConflict(repo, path, b, o, t)
		if err != nil {
			return nil, err
		}
		return []Conflict{conflict}, nil
	}

	// At least one side is a directory here. Recurse over the union of
	// child names instead of reporting the directory itself: a directory
	// conflict is not actionable for callers expecting files.
	var conflicts []Conflict

	// A file-versus-directory type change still carries file content on
	// the blob sides. Surface it instead of letting it vanish into the
	// descent.
	if (o != nil && !o.isTree()) || (t != nil && !t.isTree()) {
		blobSide := func(s *sideObject) *sideObject {
			if s == nil || s.isTree() {
				return nil
			}
			return s
		}
		conflict, err := fileConflict(repo, path, blobSide(b), blobSide(o), blobSide(t))
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}

	children, err := childNames(repo, b, o, t)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		expanded, err := expandConflict(repo, base, ours, theirs, joinPath(path, child))
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, expanded...)
	}

	return conflicts, nil
}

// fileConflict decodes the blob content for each present side of a conflict.
func fileConflict(repo *git.Repository, path string, b, o, t *sideObject) (Conflict, error) {
	conflict := Conflict{Path: path, base: b, ours: o, theirs: t}

	if o != nil {
		text, err := blobText(repo, o.hash)
		if err != nil {
			return conflict, err
		}
		conflict.Current = text
	}
	if t != nil {
		text, err := blobText(repo, t.hash)
		if err != nil {
			return conflict, err
		}
		conflict.Incoming = text
	}
	if b != nil {
		text, err := blobText(repo, b.hash)
		if err != nil {
			return conflict, err
		}
		conflict.Base = &text
	}

	return conflict, nil
}

// resolveAt descends tree along path. nil means the path does not exist on
// that side, including paths that would pass through a blob.
func resolveAt(tree *object.Tree, path string) (*sideObject, error) {
	if tree == nil {
		return nil, nil
	}
	entry, err := tree.FindEntry(path)
	if err != nil {
		return nil, nil //nolint:nilerr // absence is a result, not a failure
	}
	return &sideObject{hash: entry.Hash, mode: entry.Mode}, nil
}

// childNames unions the entry names of every side that is a directory.
func childNames(repo *git.Repository, sides ...*sideObject) ([]string, error) {
	names := make(map[string]bool)
	for _, side := range sides {
		if !side.isTree() {
			continue
		}
		tree, err := repo.TreeObject(side.hash)
		if err != nil {
			return nil, err
		}
		for _, entry := range tree.Entries {
			names[entry.Name] = true
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return sorted, nil
}

func entryMap(tree *object.Tree) map[string]*sideObject {
	m := make(map[string]*sideObject, len(tree.Entries))
	for _, entry := range tree.Entries {
		m[entry.Name] = &sideObject{hash: entry.Hash, mode: entry.Mode}
	}
	return m
}

func subtree(repo *git.Repository, side *sideObject) (*object.Tree, error) {
	if side == nil {
		return &object.Tree{}, nil
	}
	return repo.TreeObject(side.hash)
}

func treeEntry(name string, side *sideObject) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: side.mode, Hash: side.hash}
}

func treeOrAbsent(side *sideObject) bool {
	return side == nil || side.isTree()
}

// writeTree encodes entries as a tree object. Git requires entries sorted
// with directories compared as if their name had a trailing slash.
func writeTree(repo *git.Repository, entries []object.TreeEntry) (plumbing.Hash, error) {
	sort.Slice(entries, func(i, j int) bool {
		ni, nj := entries[i].Name, entries[j].Name
		if entries[i].Mode == filemode.Dir {
			ni += "/"
		}
		if entries[j].Mode == filemode.Dir {
			nj += "/"
		}
		return ni < nj
	})

	tree := &object.Tree{Entries: entries}
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(obj)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
