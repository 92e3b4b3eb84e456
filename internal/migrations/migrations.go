// Package migrations owns the job history schema. Migrations are plain SQL
// served from an in-memory fs so the binary stays self-contained.
package migrations

import (
	"context"
	"io/fs"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/database"
	"github.com/conveyorhq/conveyor/internal/logging"
)

func schema() fs.FS {
	files := map[string]string{
		"001_jobs.up.sql": `CREATE TABLE jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace VARCHAR(255) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	outcome VARCHAR(32) NOT NULL,
	conflicts INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at TIMESTAMP NOT NULL
)`,
		"001_jobs.down.sql":               `DROP TABLE jobs`,
		"002_jobs_workspace_idx.up.sql":   `CREATE INDEX jobs_workspace_idx ON jobs (workspace, id)`,
		"002_jobs_workspace_idx.down.sql": `DROP INDEX jobs_workspace_idx`,
	}
	fsys := fstest.MapFS{}
	for name, sql := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(sql)}
	}
	return fsys
}

type Runner struct {
	config  *config.Database
	log     *logging.Logger
	migrate bool
}

func New() *Runner {
	return &Runner{log: logging.Discard()}
}

func (r *Runner) WithConfig(config *config.Database) *Runner {
	r.config = config
	return r
}

func (r *Runner) WithLogger(log *logging.Logger) *Runner {
	r.log = log
	return r
}

func (r *Runner) WithMigrate(migrate bool) *Runner {
	r.migrate = migrate
	return r
}

// Run opens the database and, if requested, brings the schema up to date.
func (r *Runner) Run(ctx context.Context) (*database.Database, error) {
	db := database.New().WithConfig(r.config).WithLogger(r.log)
	if err := db.InitDB(ctx); err != nil {
		return nil, err
	}

	if !r.migrate {
		return db, nil
	}

	src, err := iofs.New(schema(), ".")
	if err != nil {
		db.Close()
		return nil, err
	}
	driver, err := migratesqlite.WithInstance(db.DB(), &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, err
	}

	r.log.Debugf("job history schema up to date")
	return db, nil
}
