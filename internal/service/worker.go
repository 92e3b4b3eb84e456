package service

import (
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/database"
	"github.com/conveyorhq/conveyor/internal/gitsync"
	"github.com/conveyorhq/conveyor/internal/logging"
	"github.com/conveyorhq/conveyor/internal/metrics"
)

var (
	defaultInterval = 30 * time.Second
	errorInterval   = 30 * time.Second
)

// WorkspaceWorker keeps one workspace in sync with its remote. Each
// execution runs a full sync cycle and records the outcome in the job
// history. The pool guarantees a worker never runs concurrently with
// itself, which is what the engine requires.
type WorkspaceWorker struct {
	workspace  *config.Workspace
	sync       *gitsync.Synchronizer
	db         *database.Database
	log        *logging.Logger
	changed    chan struct{}
	done       chan struct{}
	singleShot bool
	interval   time.Duration

	mu     sync.Mutex // guards status
	status WorkerStatus
}

func NewWorkspaceWorker(workspace *config.Workspace, sync *gitsync.Synchronizer, logger *logging.Logger) *WorkspaceWorker {
	return &WorkspaceWorker{
		workspace: workspace,
		sync:      sync,
		log:       logger,
		changed:   make(chan struct{}),
		done:      make(chan struct{}),
		interval:  defaultInterval,
	}
}

func (w *WorkspaceWorker) WithDatabase(db *database.Database) *WorkspaceWorker {
	w.db = db
	return w
}

func (w *WorkspaceWorker) WithSingleShot(singleShot bool) *WorkspaceWorker {
	w.singleShot = singleShot
	return w
}

func (w *WorkspaceWorker) WithInterval(d time.Duration) *WorkspaceWorker {
	w.interval = cmp.Or(d, defaultInterval)
	return w
}

func (w *WorkspaceWorker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *WorkspaceWorker) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// UpdateConfig retires the worker on the next cycle when the workspace
// configuration changed; the service starts a replacement.
func (w *WorkspaceWorker) UpdateConfig(workspace *config.Workspace) {
	if workspace == nil || !w.workspace.Git.Equal(&workspace.Git) || w.workspace.Path != workspace.Path {
		select {
		case <-w.changed:
		default:
			close(w.changed)
		}
	}
}

func (w *WorkspaceWorker) configurationChanged() bool {
	select {
	case <-w.changed:
		return true
	default:
		return false
	}
}

// Execute runs one sync cycle and returns the deadline for the next.
func (w *WorkspaceWorker) Execute(ctx context.Context) time.Time {
	startTime := time.Now()

	if w.configurationChanged() {
		return w.die()
	}

	name := w.workspace.Name
	metrics.GitSyncStarted(name)

	if err := w.sync.InitWorkspace(ctx); err != nil {
		w.log.Warnf("workspace %q initialization failed: %v", name, err)
		return w.report(ctx, SyncStateInternalError, startTime, 0, err)
	}

	result, err := w.sync.Sync(ctx)
	switch {
	case err != nil && errors.Is(err, gitsync.ErrDiverged):
		w.log.Warnf("workspace %q push rejected, remote moved: %v", name, err)
		return w.report(ctx, SyncStatePushFailed, startTime, 0, err)
	case err != nil:
		w.log.Warnf("workspace %q sync failed: %v", name, err)
		return w.report(ctx, SyncStateSyncFailed, startTime, 0, err)
	case result.Outcome == gitsync.OutcomeConflicted:
		w.log.Infof("workspace %q has %d merge conflict(s) awaiting resolution", name, len(result.Conflicts))
		return w.report(ctx, SyncStateConflicted, startTime, len(result.Conflicts), nil)
	}

	w.log.Debugf("workspace %q synced: %s", name, result.Outcome)
	return w.report(ctx, SyncStateSuccess, startTime, 0, nil)
}

func (w *WorkspaceWorker) report(ctx context.Context, state SyncState, startTime time.Time, conflicts int, err error) time.Time {
	interval := w.interval
	message := ""
	if err != nil {
		interval = errorInterval
		message = err.Error()
	}
	w.mu.Lock()
	w.status = WorkerStatus{State: state, Message: message}
	w.mu.Unlock()

	name := w.workspace.Name
	switch state {
	case SyncStateSuccess:
		metrics.GitSyncSucceeded(name, startTime)
	case SyncStateConflicted:
		metrics.GitSyncConflicted(name)
	default:
		metrics.GitSyncFailed(name)
	}

	if w.db != nil {
		rec := database.JobRecord{
			Workspace: name,
			Kind:      "sync",
			Outcome:   state.String(),
			Conflicts: conflicts,
			Duration:  time.Since(startTime).Milliseconds(),
			CreatedAt: startTime,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if dbErr := w.db.InsertJob(ctx, rec); dbErr != nil {
			w.log.Warnf("workspace %q: recording job history: %v", name, dbErr)
		}
	}

	if w.singleShot {
		return w.die()
	}
	return time.Now().Add(interval)
}

func (w *WorkspaceWorker) die() time.Time {
	close(w.done)
	var zero time.Time
	return zero
}
