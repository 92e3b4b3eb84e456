package gitsync

import (
	"context"
	"errors"
	"testing"

	"github.com/conveyorhq/conveyor/internal/config"
)

func TestDiscardToRemote(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, repo := cloneLocal(t, url)

	commitFiles(t, root, repo, map[string]string{"b.txt": "1\n"}, "one")
	commitFiles(t, root, repo, map[string]string{"c.txt": "2\n"}, "two")

	sync := testSync(t, root, url)
	discarded, err := sync.DiscardToRemote()
	if err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 2 {
		t.Fatalf("expected 2 discarded commits, got %d", len(discarded))
	}

	status, err := sync.LocalStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.Ahead != 0 {
		t.Fatalf("expected ahead 0 after discard, got %d", status.Ahead)
	}
	if readFileOrEmpty(t, root, "b.txt") != "" || readFileOrEmpty(t, root, "c.txt") != "" {
		t.Fatal("discarded files survived the reset")
	}

	// Already equal: success with an empty list.
	discarded, err = sync.DiscardToRemote()
	if err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 0 {
		t.Fatalf("expected no-op, got %d commits", len(discarded))
	}
}

func TestDiscardToRemoteRequiresTrackingRef(t *testing.T) {
	root, repo := newLocal(t, "")
	commitFiles(t, root, repo, map[string]string{"a.txt": "x\n"}, "initial")

	if _, err := testSync(t, root, "").DiscardToRemote(); !errors.Is(err, ErrRemoteNotConfigured) {
		t.Fatalf("expected ErrRemoteNotConfigured, got %v", err)
	}
}

func TestDiscardCommit(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, repo := cloneLocal(t, url)

	target := commitFiles(t, root, repo, map[string]string{"b.txt": "1\n"}, "one")
	commitFiles(t, root, repo, map[string]string{"c.txt": "2\n"}, "two")

	sync := testSync(t, root, url)
	discarded, err := sync.DiscardCommit(target.String())
	if err != nil {
		t.Fatal(err)
	}
	// Target plus its descendant.
	if len(discarded) != 2 {
		t.Fatalf("expected 2 discarded commits, got %d", len(discarded))
	}
	if readFileOrEmpty(t, root, "b.txt") != "" {
		t.Fatal("target commit content survived")
	}
	if got := readFileOrEmpty(t, root, "a.txt"); got != "x\n" {
		t.Fatalf("parent content lost, got %q", got)
	}
}

func TestDiscardCommitRefusesRoot(t *testing.T) {
	root, repo := newLocal(t, "")
	rootCommit := commitFiles(t, root, repo, map[string]string{"a.txt": "x\n"}, "root")
	commitFiles(t, root, repo, map[string]string{"b.txt": "y\n"}, "child")

	sync := testSync(t, root, "")
	if _, err := sync.DiscardCommit(rootCommit.String()); !errors.Is(err, ErrRootCommit) {
		t.Fatalf("expected ErrRootCommit, got %v", err)
	}

	// Refs untouched.
	status, err := sync.LocalStatus()
	if err != nil {
		t.Fatal(err)
	}
	if len(status.History) != 2 {
		t.Fatalf("expected history intact, got %d commits", len(status.History))
	}
}

func TestCommitAllHonorsExcludes(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, _ := cloneLocal(t, url)

	branch := "main"
	sync := New(root, config.Git{Repo: url, Branch: &branch, Exclude: []string{"*.log", "tmp/**"}})

	commitFilesOnDisk(t, root, map[string]string{
		"kept.txt":     "k\n",
		"noise.log":    "n\n",
		"tmp/scratch":  "s\n",
		"tmp/deep/two": "d\n",
	})

	_, staged, err := sync.CommitAll("local changes")
	if err != nil {
		t.Fatal(err)
	}
	if len(staged) != 1 || staged[0] != "kept.txt" {
		t.Fatalf("expected only kept.txt staged, got %v", staged)
	}
}

func TestPushDivergedSurfacesErrDiverged(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, repo := cloneLocal(t, url)

	commitFiles(t, root, repo, map[string]string{"b.txt": "l\n"}, "local")
	pushOther(t, url, map[string]string{"c.txt": "r\n"}, "remote")

	err := push(context.Background(), repo, nil)
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
}

func TestHistoryMarksPushedCommits(t *testing.T) {
	url := seedRemote(t, map[string]string{"a.txt": "x\n"})
	root, repo := cloneLocal(t, url)

	commitFiles(t, root, repo, map[string]string{"b.txt": "1\n"}, "local only")

	commits, err := testSync(t, root, url).History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[0].IsPushed {
		t.Fatal("local-only commit marked as pushed")
	}
	if !commits[1].IsPushed {
		t.Fatal("remote commit not marked as pushed")
	}
}
