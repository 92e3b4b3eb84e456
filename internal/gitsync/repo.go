package gitsync

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
)

const remoteName = "origin"

// Thin adapter over go-git's object store, ref database and index. All
// accessors re-open the repository from disk: the control directory can be
// created or destroyed by initialization flows, so existence is probed on
// every operation instead of cached.

// open opens the repository at root, mapping "does not exist" to the
// engine's own error so callers can distinguish an uninitialized workspace
// from a broken one.
func open(root string) (*git.Repository, error) {
	repo, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotARepository
	}
	return repo, err
}

// isRepo reports whether root currently holds a repository.
func isRepo(root string) bool {
	_, err := git.PlainOpen(root)
	return err == nil
}

// controlDir returns the path of the repository control directory.
func controlDir(root string) string {
	return filepath.Join(root, git.GitDirName)
}

// ensureRemote makes sure the repository has an origin remote pointing at
// url. The URL carries no credentials; authentication happens per-call via
// transport auth methods.
func ensureRemote(repo *git.Repository, url string) error {
	remote, err := repo.Remote(remoteName)
	if err == nil {
		if cfg := remote.Config(); len(cfg.URLs) > 0 && cfg.URLs[0] == url {
			return nil
		}
		if err := repo.DeleteRemote(remoteName); err != nil {
			return err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})
	return err
}

// head resolves the current HEAD commit hash. A repository with no commits
// yet resolves to the zero hash without error.
func head(repo *git.Repository) (plumbing.Hash, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

// currentBranch resolves the branch name HEAD points at.
func currentBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", fmt.Errorf("HEAD is detached at %s", ref.Hash())
	}
	target := ref.Target()
	if !target.IsBranch() {
		return "", fmt.Errorf("HEAD points at %s, not a branch", target)
	}
	return target.Short(), nil
}

// trackingRef resolves refs/remotes/origin/<branch>. Returns
// plumbing.ErrReferenceNotFound when the branch has never been fetched.
func trackingRef(repo *git.Repository, branch string) (*plumbing.Reference, error) {
	return repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
}

// writeBlob registers content as a blob object and returns its hash. Writing
// an already-present blob is a no-op by content addressing.
func writeBlob(storer storage.Storer, content []byte) (plumbing.Hash, error) {
	obj := storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	return storer.SetEncodedObject(obj)
}

// blobText decodes the blob at hash as text. Decoding is best-effort: bytes
// that are not valid UTF-8 are replaced rather than reported as an error,
// since conflict presentation must never fail on odd encodings.
func blobText(repo *git.Repository, hash plumbing.Hash) (string, error) {
	blob, err := repo.BlobObject(hash)
	if err != nil {
		return "", err
	}
	r, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()

	bs, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(bs), "�"), nil
}

// readIndex loads the staging index.
func readIndex(repo *git.Repository) (*index.Index, error) {
	return repo.Storer.Index()
}

// writeIndex persists the staging index. Entries must stay sorted by path
// and stage for the on-disk format to round-trip.
func writeIndex(repo *git.Repository, idx *index.Index) error {
	sortIndexEntries(idx)
	return repo.Storer.SetIndex(idx)
}

func sortIndexEntries(idx *index.Index) {
	entries := idx.Entries
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && lessEntry(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func lessEntry(a, b *index.Entry) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Stage < b.Stage
}

// commitObject is a nil-tolerant lookup used by graph walks.
func commitObject(repo *git.Repository, hash plumbing.Hash) (*object.Commit, error) {
	return repo.CommitObject(hash)
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
