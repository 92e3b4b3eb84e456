// Package service runs the synchronization engine for a set of configured
// workspaces: a deadline pool schedules periodic syncs, job submissions
// trigger immediate runs, and every outcome lands in the job history
// database and on the progress broadcaster.
package service

import (
	"cmp"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/database"
	"github.com/conveyorhq/conveyor/internal/gitsync"
	"github.com/conveyorhq/conveyor/internal/logging"
	"github.com/conveyorhq/conveyor/internal/migrations"
	"github.com/conveyorhq/conveyor/internal/pool"
	pkgsync "github.com/conveyorhq/conveyor/pkg/sync"
)

const defaultWorkers = 2

type Service struct {
	config     *config.Root
	log        *logging.Logger
	secrets    pkgsync.SecretProvider
	bus        pkgsync.Broadcaster
	installer  pkgsync.Installer
	singleShot bool

	pool    *pool.Pool
	db      *database.Database
	group   singleflight.Group
	mu      sync.Mutex
	workers map[string]*WorkspaceWorker
	syncs   map[string]*gitsync.Synchronizer
}

func New() *Service {
	return &Service{
		log:     logging.Discard(),
		bus:     pkgsync.NopBroadcaster{},
		workers: map[string]*WorkspaceWorker{},
		syncs:   map[string]*gitsync.Synchronizer{},
	}
}

func (s *Service) WithConfig(config *config.Root) *Service {
	s.config = config
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) WithSecretProvider(secrets pkgsync.SecretProvider) *Service {
	s.secrets = secrets
	return s
}

func (s *Service) WithBroadcaster(bus pkgsync.Broadcaster) *Service {
	s.bus = bus
	return s
}

func (s *Service) WithInstaller(installer pkgsync.Installer) *Service {
	s.installer = installer
	return s
}

// WithSingleShot makes every worker retire after its first cycle. Used by
// the one-off CLI commands.
func (s *Service) WithSingleShot(singleShot bool) *Service {
	s.singleShot = singleShot
	return s
}

// Run opens the job history database, starts the worker pool and schedules
// one worker per configured workspace. It returns once everything is
// scheduled; workers keep running until their configuration changes.
func (s *Service) Run(ctx context.Context) error {
	db, err := migrations.New().
		WithConfig(s.config.Database).
		WithLogger(s.log).
		WithMigrate(true).
		Run(ctx)
	if err != nil {
		return fmt.Errorf("job history database: %w", err)
	}
	s.db = db

	workers := defaultWorkers
	if s.config.Service != nil {
		workers = cmp.Or(s.config.Service.Workers, defaultWorkers)
	}
	s.pool = pool.New(workers)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.config.WorkspaceNames() {
		s.startWorker(s.config.Workspaces[name])
	}
	return nil
}

func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// startWorker must run under s.mu.
func (s *Service) startWorker(workspace *config.Workspace) {
	sync := s.synchronizer(workspace)
	worker := NewWorkspaceWorker(workspace, sync, s.log).
		WithDatabase(s.db).
		WithSingleShot(s.singleShot)

	s.workers[workspace.Name] = worker
	s.syncs[workspace.Name] = sync
	s.pool.Add(workspace.Name, worker.Execute)
}

func (s *Service) synchronizer(workspace *config.Workspace) *gitsync.Synchronizer {
	var authorName, authorEmail string
	if s.config.Service != nil {
		authorName, authorEmail = s.config.Service.AuthorName, s.config.Service.AuthorEmail
	}
	return gitsync.New(workspace.Path, workspace.Git).
		WithAuthenticator(gitsync.NewAuthenticator(s.secrets)).
		WithLogger(s.log.WithFields(map[string]any{"workspace": workspace.Name})).
		WithBroadcaster(s.bus).
		WithInstaller(s.installer).
		WithAuthor(authorName, authorEmail)
}

// UpdateConfig reconciles the running workers against a new configuration.
// Changed workers retire on their next cycle and restart with the new
// settings; removed workspaces just retire.
func (s *Service) UpdateConfig(next *config.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, worker := range s.workers {
		worker.UpdateConfig(next.Workspaces[name])
		if next.Workspaces[name] == nil {
			delete(s.workers, name)
			delete(s.syncs, name)
		}
	}
	for _, name := range next.WorkspaceNames() {
		if _, ok := s.workers[name]; !ok {
			s.startWorker(next.Workspaces[name])
		}
	}
	s.config = next
}

// Submit dispatches one job. Sync jobs trigger the workspace's worker; a
// worker mid-run re-runs when it finishes. Refresh jobs run inline and
// return the assembled status.
func (s *Service) Submit(ctx context.Context, job pkgsync.Job) (*gitsync.Status, error) {
	switch job.Kind {
	case pkgsync.JobSync:
		return nil, s.pool.Trigger(job.WorkspaceID)
	case pkgsync.JobRefresh:
		return s.Refresh(ctx, job.WorkspaceID)
	default:
		return nil, fmt.Errorf("unknown job kind %d", job.Kind)
	}
}

// Refresh assembles the workspace status. Concurrent refreshes of the same
// workspace collapse into one underlying fetch.
func (s *Service) Refresh(ctx context.Context, workspace string) (*gitsync.Status, error) {
	s.mu.Lock()
	sync, ok := s.syncs[workspace]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown workspace %q", workspace)
	}

	status, err, _ := s.group.Do(workspace, func() (any, error) {
		return sync.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return status.(*gitsync.Status), nil
}

// History pages through the recorded jobs of one workspace.
func (s *Service) History(ctx context.Context, workspace string, opts database.ListOptions) ([]database.JobRecord, string, error) {
	return s.db.ListJobs(ctx, workspace, opts)
}

// WorkerStatus reports the last observed state for a workspace.
func (s *Service) WorkerStatus(workspace string) (WorkerStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[workspace]
	if !ok {
		return WorkerStatus{}, false
	}
	return worker.Status(), true
}
