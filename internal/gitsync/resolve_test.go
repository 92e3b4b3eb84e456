package gitsync

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveWithOnDiskContent(t *testing.T) {
	root, sync, _ := enterTestMerge(t)

	// Whatever is on disk wins, regardless of the choice.
	merged := "merged by hand\n"
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte(merged), 0644); err != nil {
		t.Fatal(err)
	}

	remaining, err := sync.Resolve("a.txt", ResolveManual)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Fatalf("expected no remaining conflicts, got %d", remaining)
	}

	repo, err := open(root)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := readIndex(repo)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, entry := range idx.Entries {
		if entry.Name == "a.txt" {
			count++
			if entry.Stage != 0 {
				t.Fatalf("expected stage-0 entry, got stage %d", entry.Stage)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one index entry, got %d", count)
	}
}

func TestResolveByDeletion(t *testing.T) {
	root, sync, _ := enterTestMerge(t)

	if err := os.Remove(filepath.Join(root, "a.txt")); err != nil {
		t.Fatal(err)
	}

	remaining, err := sync.Resolve("a.txt", ResolveManual)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Fatalf("expected no remaining conflicts, got %d", remaining)
	}

	repo, err := open(root)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := readIndex(repo)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range idx.Entries {
		if entry.Name == "a.txt" {
			t.Fatalf("expected no entries for deleted resolution, found stage %d", entry.Stage)
		}
	}
}

func TestResolveUnconflictedPathFails(t *testing.T) {
	_, sync, _ := enterTestMerge(t)

	if _, err := sync.Resolve("b.txt", ResolveManual); err == nil {
		t.Fatal("expected error resolving unconflicted path")
	}
}

func TestResolveThenCommitFinalizesMerge(t *testing.T) {
	root, sync, conflicts := enterTestMerge(t)

	// Take the incoming side.
	incoming := conflicts[0].Incoming
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte(incoming), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := sync.Resolve("a.txt", ResolveIncoming); err != nil {
		t.Fatal(err)
	}

	sha, _, err := sync.CommitAll("merge resolved")
	if err != nil {
		t.Fatal(err)
	}

	repo, err := open(root)
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.CommitObject(plumbingHash(t, sha))
	if err != nil {
		t.Fatal(err)
	}
	if commit.NumParents() != 2 {
		t.Fatalf("expected merge commit with two parents, got %d", commit.NumParents())
	}

	if _, merging, err := inMergeState(repo, root); err != nil {
		t.Fatal(err)
	} else if merging {
		t.Fatal("merge state must be cleared after the merge commit")
	}

	// The merge commit is local only: one ahead of the remote.
	status, err := sync.LocalStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.Ahead == 0 {
		t.Fatal("expected merge commit to count as ahead")
	}
}
