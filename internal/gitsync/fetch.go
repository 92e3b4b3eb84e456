package gitsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/issues/64
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

// RefUpdates maps branch names to the remote commit hash observed during a
// fetch.
type RefUpdates map[string]plumbing.Hash

// fetch downloads missing objects reachable from the remote's advertised
// branch heads, then explicitly rewrites every refs/remotes/origin/<branch>
// to the advertised hash. The second step is not optional: populating the
// object store alone leaves the tracking refs stale, and every downstream
// ahead/behind and merge computation would silently operate on old data.
// The remote's symbolic HEAD entry is skipped.
//
// Ref updates are idempotent per branch, so a transport failure after some
// refs were already rewritten leaves a consistent (if partial) view.
func fetch(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) (RefUpdates, error) {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return nil, ErrRemoteNotConfigured
		}
		return nil, err
	}

	advertised, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return RefUpdates{}, nil
		}
		return nil, &TransportError{Op: "fetch", Err: err}
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       auth,
		Force:      true,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remoteName)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, &TransportError{Op: "fetch", Err: err}
	}

	updates := RefUpdates{}
	for _, ref := range advertised {
		if ref.Type() == plumbing.SymbolicReference {
			continue // the remote's HEAD
		}
		if !ref.Name().IsBranch() {
			continue
		}
		branch := ref.Name().Short()
		tracking := plumbing.NewRemoteReferenceName(remoteName, branch)
		if err := repo.Storer.SetReference(plumbing.NewHashReference(tracking, ref.Hash())); err != nil {
			return updates, err
		}
		updates[branch] = ref.Hash()
	}

	return updates, nil
}
