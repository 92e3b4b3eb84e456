package gitsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"

	"github.com/conveyorhq/conveyor/internal/config"
)

// Tests talk to on-disk remotes through an in-process pack protocol server,
// so no git binary and no network are involved.
func init() {
	client.InstallProtocol("file", server.NewServer(server.NewFilesystemLoader(osfs.New("/"))))
}

func testSignature() object.Signature {
	return object.Signature{Name: "test", Email: "test@conveyor.invalid", When: time.Now()}
}

// newBareRemote creates an empty bare repository and returns its URL.
func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))
	if err := repo.Storer.SetReference(head); err != nil {
		t.Fatal(err)
	}
	return "file://" + dir
}

// newLocal initializes an empty repository on main with the remote
// configured.
func newLocal(t *testing.T, url string) (string, *git.Repository) {
	t.Helper()
	root := t.TempDir()
	repo, err := initRepo(root, "main")
	if err != nil {
		t.Fatal(err)
	}
	if url != "" {
		if err := ensureRemote(repo, url); err != nil {
			t.Fatal(err)
		}
	}
	return root, repo
}

// seedRemote populates a bare remote with one commit of the given files and
// returns the remote URL.
func seedRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	url := newBareRemote(t)
	root, repo := newLocal(t, url)
	commitFiles(t, root, repo, files, "initial commit")
	if err := push(context.Background(), repo, nil); err != nil {
		t.Fatal(err)
	}
	return url
}

// cloneLocal clones the remote into a fresh directory.
func cloneLocal(t *testing.T, url string) (string, *git.Repository) {
	t.Helper()
	root := t.TempDir()
	repo, err := cloneRepo(context.Background(), root, url, "main", nil)
	if err != nil {
		t.Fatal(err)
	}
	return root, repo
}

// commitFiles writes and stages the given files (an empty value deletes the
// file) and commits.
func commitFiles(t *testing.T, root string, repo *git.Repository, files map[string]string, message string) plumbing.Hash {
	t.Helper()
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		if content == "" {
			if err := os.Remove(abs); err != nil {
				t.Fatal(err)
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := w.Add(path); err != nil {
			t.Fatal(err)
		}
	}

	sig := testSignature()
	hash, err := w.Commit(message, &git.CommitOptions{Author: &sig})
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

// commitFilesOnDisk writes files to the working tree without staging or
// committing them.
func commitFilesOnDisk(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// pushOther commits files in a second clone of the remote and pushes,
// simulating a concurrent writer. Only usable while the primary clone has no
// local-only commits: the in-process server walks every hash the client
// advertises during fetch negotiation, so both sides must stay
// object-complete. Diverged fixtures use divergeRemote instead.
func pushOther(t *testing.T, url string, files map[string]string, message string) plumbing.Hash {
	t.Helper()
	root, repo := cloneLocal(t, url)
	hash := commitFiles(t, root, repo, files, message)
	if err := push(context.Background(), repo, nil); err != nil {
		t.Fatal(err)
	}
	return hash
}

// divergeRemote advances the remote branch by the given commits and resets
// the local branch back to where it was, leaving the histories diverged.
// The remote commits are minted in the local repository and pushed while
// the push still fast-forwards, so every object stays present on both sides
// of the transport; local-only commits made afterwards never cross the wire
// during fetch negotiation. Returns the new remote head.
func divergeRemote(t *testing.T, root string, repo *git.Repository, commits ...map[string]string) plumbing.Hash {
	t.Helper()
	base, err := head(repo)
	if err != nil {
		t.Fatal(err)
	}

	var theirs plumbing.Hash
	for i, files := range commits {
		theirs = commitFiles(t, root, repo, files, fmt.Sprintf("remote change %d", i+1))
	}
	if err := push(context.Background(), repo, nil); err != nil {
		t.Fatal(err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: base}); err != nil {
		t.Fatal(err)
	}
	return theirs
}

func testSync(t *testing.T, root, url string) *Synchronizer {
	t.Helper()
	branch := "main"
	return New(root, config.Git{Repo: url, Branch: &branch})
}

func plumbingHash(t *testing.T, sha string) plumbing.Hash {
	t.Helper()
	hash := plumbing.NewHash(sha)
	if hash.IsZero() {
		t.Fatalf("invalid sha %q", sha)
	}
	return hash
}

func readFileOrEmpty(t *testing.T, root, path string) string {
	t.Helper()
	bs, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(bs)
}
