package gitsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotARepository marks an operation attempted on a workspace whose
	// control directory does not exist (yet, or anymore).
	ErrNotARepository = errors.New("workspace is not a git repository")

	// ErrRemoteNotConfigured marks an operation that needs a remote
	// tracking ref which has never been fetched.
	ErrRemoteNotConfigured = errors.New("remote is not configured for this workspace")

	// ErrDiverged marks a push rejected because the remote advanced since
	// this job's fetch. Retryable by re-running the whole sync job.
	ErrDiverged = errors.New("remote has diverged, pull before pushing")

	// ErrUnresolvableState marks an index whose stage configuration the
	// resolver cannot interpret. Fatal; requires manual intervention.
	ErrUnresolvableState = errors.New("index is in an unresolvable merge state")

	// ErrRootCommit marks a discard-commit attempt on a commit without
	// parents.
	ErrRootCommit = errors.New("cannot discard a root commit")
)

// TransportError wraps a network or authentication failure during fetch or
// push. Retryable.
type TransportError struct {
	Op  string // "fetch" or "push"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
