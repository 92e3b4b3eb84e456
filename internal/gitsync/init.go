package gitsync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const defaultBranch = "main"

// manifestFile marks a workspace whose dependencies need installing after a
// destructive replace.
const manifestFile = "package.json"

// initRepo creates an empty repository with HEAD pointing at branch. The
// branch ref itself does not exist until the first commit.
func initRepo(root, branch string) (*git.Repository, error) {
	repo, err := git.PlainInit(root, false)
	if err != nil {
		return nil, err
	}
	name := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, name)); err != nil {
		return nil, err
	}
	return repo, nil
}

// cloneRepo clones url into root. An empty remote is not an error: the
// workspace starts as a fresh repository with the remote configured, ready
// for the first push.
func cloneRepo(ctx context.Context, root, url, branch string, auth transport.AuthMethod) (*git.Repository, error) {
	opts := &git.CloneOptions{URL: url, Auth: auth}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(ctx, root, false, opts)
	switch {
	case err == nil:
	case err == transport.ErrEmptyRemoteRepository:
		if branch == "" {
			branch = defaultBranch
		}
		repo, err = initRepo(root, branch)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &TransportError{Op: "clone", Err: err}
	}

	if err := ensureRemote(repo, url); err != nil {
		return nil, err
	}
	return repo, nil
}

// clearWorkspace deletes everything under root, the control directory
// included, leaving root itself in place.
func clearWorkspace(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func hasManifest(root string) bool {
	return fileExists(filepath.Join(root, manifestFile))
}
