package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/database"
	"github.com/conveyorhq/conveyor/internal/migrations"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	cfg := &config.Database{DSN: "file:" + filepath.Join(t.TempDir(), "jobs.db")}
	db, err := migrations.New().WithConfig(cfg).WithMigrate(true).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndListJobs(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		err := db.InsertJob(ctx, database.JobRecord{
			Workspace: "docs",
			Kind:      "sync",
			Outcome:   "pushed",
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := db.InsertJob(ctx, database.JobRecord{
		Workspace: "other",
		Kind:      "sync",
		Outcome:   "up-to-date",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	records, next, err := db.ListJobs(ctx, "docs", database.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if next != "" {
		t.Fatalf("expected exhausted listing, got cursor %q", next)
	}
	for i := 1; i < len(records); i++ {
		if records[i].ID > records[i-1].ID {
			t.Fatal("records not in newest-first order")
		}
	}
}

func TestListJobsPagination(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		err := db.InsertJob(ctx, database.JobRecord{
			Workspace: "docs",
			Kind:      "sync",
			Outcome:   "pushed",
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	var (
		seen   []int64
		cursor string
	)
	for page := 0; ; page++ {
		records, next, err := db.ListJobs(ctx, "docs", database.ListOptions{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range records {
			seen = append(seen, rec.ID)
		}
		if next == "" {
			break
		}
		if page > 5 {
			t.Fatal("pagination did not terminate")
		}
		cursor = next
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 records across pages, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] >= seen[i-1] {
			t.Fatalf("duplicate or out-of-order id at %d: %v", i, seen)
		}
	}
}

func TestLastJob(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)

	rec, err := db.LastJob(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil for empty history, got %+v", rec)
	}

	for _, outcome := range []string{"pushed", "conflicted"} {
		err := db.InsertJob(ctx, database.JobRecord{
			Workspace: "docs",
			Kind:      "sync",
			Outcome:   outcome,
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec, err = db.LastJob(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Outcome != "conflicted" {
		t.Fatalf("expected most recent record, got %+v", rec)
	}
}

func TestPruneJobs(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	for _, created := range []time.Time{old, old, time.Now()} {
		err := db.InsertJob(ctx, database.JobRecord{
			Workspace: "docs",
			Kind:      "sync",
			Outcome:   "pushed",
			CreatedAt: created,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.PruneJobs(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}

	records, _, err := db.ListJobs(ctx, "docs", database.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(records))
	}
}
