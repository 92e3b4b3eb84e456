package gitsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func enterTestMerge(t *testing.T) (string, *Synchronizer, []Conflict) {
	t.Helper()
	url := seedRemote(t, map[string]string{"a.txt": "base\n", "b.txt": "base\n"})
	root, repo := cloneLocal(t, url)

	divergeRemote(t, root, repo, map[string]string{"a.txt": "theirs\n"})
	commitFiles(t, root, repo, map[string]string{"a.txt": "ours\n"}, "local edit")

	sync := testSync(t, root, url)
	result, err := sync.Sync(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeConflicted {
		t.Fatalf("expected conflicted outcome, got %s", result.Outcome)
	}
	return root, sync, result.Conflicts
}

func TestMergeStatePersistence(t *testing.T) {
	root, _, conflicts := enterTestMerge(t)

	if len(conflicts) != 1 || conflicts[0].Path != "a.txt" {
		t.Fatalf("unexpected conflicts %+v", conflicts)
	}

	// Detection must not touch the working tree.
	if got := readFileOrEmpty(t, root, "a.txt"); got != "ours\n" {
		t.Fatalf("working tree modified by conflict detection: %q", got)
	}

	repo, err := open(root)
	if err != nil {
		t.Fatal(err)
	}
	incoming, merging, err := inMergeState(repo, root)
	if err != nil {
		t.Fatal(err)
	}
	if !merging || incoming.IsZero() {
		t.Fatal("expected merge state with incoming commit")
	}

	paths, err := conflictedPaths(repo)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.txt"}, paths); diff != "" {
		t.Fatalf("conflicted paths (-want +got):\n%s", diff)
	}

	record := loadSideRecord(root)
	if diff := cmp.Diff(conflicts, record, cmpopts.IgnoreUnexported(Conflict{})); diff != "" {
		t.Fatalf("side record round trip (-want +got):\n%s", diff)
	}
}

func TestMergeStateSelfHeals(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, repo := cloneLocal(t, url)

	// A marker with no higher-stage entries is stale state, for example
	// after a crash mid-resolution.
	marker := filepath.Join(controlDir(root), mergeHeadFile)
	if err := os.WriteFile(marker, []byte(plumbing.ZeroHash.String()[:39]+"1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, merging, err := inMergeState(repo, root)
	if err != nil {
		t.Fatal(err)
	}
	if merging {
		t.Fatal("stale marker must not report a merge in progress")
	}
	if fileExists(marker) {
		t.Fatal("stale marker must be removed")
	}
}

func TestClearMergeState(t *testing.T) {
	root, _, _ := enterTestMerge(t)

	if err := clearMergeState(root); err != nil {
		t.Fatal(err)
	}
	if fileExists(filepath.Join(controlDir(root), mergeHeadFile)) {
		t.Fatal("marker survived clear")
	}
	if fileExists(filepath.Join(controlDir(root), sideRecordFile)) {
		t.Fatal("side record survived clear")
	}
	// Idempotent.
	if err := clearMergeState(root); err != nil {
		t.Fatal(err)
	}
}
