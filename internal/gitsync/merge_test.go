package gitsync

import (
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// treeOf builds three commits from a common base and returns their trees.
func threeWay(t *testing.T, base, ours, theirs map[string]string) (*git.Repository, *object.Tree, *object.Tree, *object.Tree) {
	t.Helper()
	root, repo := newLocal(t, "")

	baseHash := commitFiles(t, root, repo, base, "base")
	oursHash := commitFiles(t, root, repo, ours, "ours")

	// Rewind to base, apply theirs on a detached line.
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: baseHash}); err != nil {
		t.Fatal(err)
	}
	theirsHash := commitFiles(t, root, repo, theirs, "theirs")

	return repo, treeOf(t, repo, baseHash), treeOf(t, repo, oursHash), treeOf(t, repo, theirsHash)
}

func treeOf(t *testing.T, repo *git.Repository, hash plumbing.Hash) *object.Tree {
	t.Helper()
	commit, err := repo.CommitObject(hash)
	if err != nil {
		t.Fatal(err)
	}
	tree, err := commit.Tree()
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func conflictPaths(outcome *mergeOutcome) []string {
	var paths []string
	for _, c := range outcome.Conflicts {
		paths = append(paths, c.Path)
	}
	return paths
}

func TestMergeDisjointChanges(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"a.txt": "base\n"},
		map[string]string{"a.txt": "ours\n"},
		map[string]string{"b.txt": "new\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 0 {
		t.Fatalf("expected clean merge, got conflicts %v", conflictPaths(outcome))
	}
	if outcome.TreeHash.IsZero() {
		t.Fatal("expected merged tree hash")
	}

	tree, err := repo.TreeObject(outcome.TreeHash)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"a.txt", "b.txt"} {
		if _, err := tree.FindEntry(path); err != nil {
			t.Fatalf("merged tree missing %s", path)
		}
	}
	entry, err := tree.FindEntry("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if text, err := blobText(repo, entry.Hash); err != nil || text != "ours\n" {
		t.Fatalf("expected our change to win, got %q (%v)", text, err)
	}
}

func TestMergeBothSidesSameChange(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"a.txt": "base\n"},
		map[string]string{"a.txt": "same\n"},
		map[string]string{"a.txt": "same\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 0 {
		t.Fatalf("identical changes must not conflict, got %v", conflictPaths(outcome))
	}
}

func TestMergeContentConflict(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"a.txt": "base\n"},
		map[string]string{"a.txt": "ours\n"},
		map[string]string{"a.txt": "theirs\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}

	baseContent := "base\n"
	want := []Conflict{{Path: "a.txt", Current: "ours\n", Incoming: "theirs\n", Base: &baseContent}}
	if diff := cmp.Diff(want, outcome.Conflicts, cmpopts.IgnoreUnexported(Conflict{})); diff != "" {
		t.Fatalf("unexpected conflicts (-want +got):\n%s", diff)
	}
}

func TestMergeDeleteVersusModify(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"a.txt": "base\n", "keep.txt": "x\n"},
		map[string]string{"a.txt": ""},         // deleted by us
		map[string]string{"a.txt": "edited\n"}, // modified by them
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflictPaths(outcome))
	}

	c := outcome.Conflicts[0]
	if c.Path != "a.txt" || c.Current != "" || c.Incoming != "edited\n" {
		t.Fatalf("unexpected conflict %+v", c)
	}
	if c.Base == nil || *c.Base != "base\n" {
		t.Fatalf("expected base content, got %v", c.Base)
	}
}

func TestMergeBothAddedDifferently(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"seed.txt": "s\n"},
		map[string]string{"new.txt": "ours\n"},
		map[string]string{"new.txt": "theirs\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflictPaths(outcome))
	}
	if outcome.Conflicts[0].Base != nil {
		t.Fatal("independently added file must have nil base")
	}
}

func TestMergeDescendsToFileGranularity(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"dir/sub/file.txt": "base\n", "dir/other.txt": "o\n"},
		map[string]string{"dir/sub/file.txt": "ours\n"},
		map[string]string{"dir/sub/file.txt": "theirs\n", "dir/added.txt": "new\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}

	got := conflictPaths(outcome)
	want := []string{"dir/sub/file.txt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("conflicts must name files, not directories (-want +got):\n%s", diff)
	}
}

func TestMergeBothAddedDisjointDirectory(t *testing.T) {
	repo, base, ours, theirs := threeWay(t,
		map[string]string{"seed.txt": "s\n"},
		map[string]string{"pkg/ours.txt": "a\n"},
		map[string]string{"pkg/theirs.txt": "b\n"},
	)

	outcome, err := detectConflicts(repo, base, ours, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 0 {
		t.Fatalf("disjoint additions under one directory must merge, got %v", conflictPaths(outcome))
	}

	tree, err := repo.TreeObject(outcome.TreeHash)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"pkg/ours.txt", "pkg/theirs.txt", "seed.txt"} {
		if _, err := tree.FindEntry(path); err != nil {
			t.Fatalf("merged tree missing %s", path)
		}
	}
}

func TestMergeUnrelatedHistories(t *testing.T) {
	// No common ancestor: every differing path conflicts with a nil base.
	root, repo := newLocal(t, "")
	oursHash := commitFiles(t, root, repo, map[string]string{"a.txt": "ours\n"}, "ours root")

	// Second parentless root on an orphan branch.
	orphan := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("orphan"))
	if err := repo.Storer.SetReference(orphan); err != nil {
		t.Fatal(err)
	}
	theirsHash := commitFiles(t, root, repo, map[string]string{"a.txt": "theirs\n"}, "theirs root")

	outcome, err := detectConflicts(repo, nil, treeOf(t, repo, oursHash), treeOf(t, repo, theirsHash))
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflictPaths(outcome))
	}
	if outcome.Conflicts[0].Base != nil {
		t.Fatal("unrelated histories must produce nil base")
	}
}
