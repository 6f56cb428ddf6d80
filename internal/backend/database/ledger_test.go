package database

import (
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// ledgerBackends returns one fresh instance of every supported backend
func ledgerBackends(t *testing.T) map[string]DatabaseService {
	t.Helper()

	sqliteDB, err := NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase(sqlite) error: %v", err)
	}
	t.Cleanup(func() { _ = sqliteDB.Close() })

	mr := miniredis.RunT(t)
	redisDB, err := NewDatabase("redis", mr.Addr())
	if err != nil {
		t.Fatalf("NewDatabase(redis) error: %v", err)
	}
	t.Cleanup(func() { _ = redisDB.Close() })

	return map[string]DatabaseService{
		"sqlite": sqliteDB,
		"redis":  redisDB,
	}
}

func TestNewDatabase_UnsupportedType(t *testing.T) {
	if _, err := NewDatabase("postgres", "whatever"); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestNewDatabase_RedisURL(t *testing.T) {
	mr := miniredis.RunT(t)
	ds, err := NewDatabase("redis", "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewDatabase(redis url) error: %v", err)
	}
	defer func() { _ = ds.Close() }()
	if !ds.DoesDatabaseExist() {
		t.Fatal("expected DoesDatabaseExist to return true")
	}
}

func TestLedger_RunLifecycle(t *testing.T) {
	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			if !ds.DoesDatabaseExist() {
				t.Fatalf("expected DoesDatabaseExist to return true")
			}

			started := time.Unix(1700000000, 0)
			id, err := ds.CreateRun(started)
			if err != nil {
				t.Fatalf("CreateRun error: %v", err)
			}

			run, err := ds.GetRunByID(id)
			if err != nil {
				t.Fatalf("GetRunByID error: %v", err)
			}
			if run == nil {
				t.Fatal("GetRunByID returned nil; expected run")
			}
			if run.Status != RunStatusRunning {
				t.Errorf("expected status %q, got %q", RunStatusRunning, run.Status)
			}
			if !run.StartedAt.Equal(started) {
				t.Errorf("expected started_at %v, got %v", started, run.StartedAt)
			}
			if !run.FinishedAt.IsZero() {
				t.Errorf("expected zero finished_at, got %v", run.FinishedAt)
			}

			finished := started.Add(3 * time.Second)
			if err := ds.FinishRun(id, finished, RunStatusCompletedWithErrors); err != nil {
				t.Fatalf("FinishRun error: %v", err)
			}

			run, err = ds.GetRunByID(id)
			if err != nil {
				t.Fatalf("GetRunByID error: %v", err)
			}
			if run.Status != RunStatusCompletedWithErrors {
				t.Errorf("expected status %q, got %q", RunStatusCompletedWithErrors, run.Status)
			}
			if !run.FinishedAt.Equal(finished) {
				t.Errorf("expected finished_at %v, got %v", finished, run.FinishedAt)
			}
		})
	}
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := ds.FinishRun("non-existent-id", time.Now(), RunStatusCompleted); err == nil {
				t.Fatal("expected error when finishing an unknown run")
			}
		})
	}
}

func TestLedger_GetRunByID_NotFound(t *testing.T) {
	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			run, err := ds.GetRunByID("non-existent-id")
			if err != nil {
				t.Fatalf("GetRunByID(non-existent) error: %v", err)
			}
			if run != nil {
				t.Fatalf("GetRunByID(non-existent) returned non-nil; expected nil")
			}
		})
	}
}

func TestLedger_GetRuns_NewestFirst(t *testing.T) {
	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			older, err := ds.CreateRun(time.Unix(100, 0))
			if err != nil {
				t.Fatalf("CreateRun #1 error: %v", err)
			}
			newer, err := ds.CreateRun(time.Unix(200, 0))
			if err != nil {
				t.Fatalf("CreateRun #2 error: %v", err)
			}

			runs, err := ds.GetRuns()
			if err != nil {
				t.Fatalf("GetRuns error: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("expected 2 runs, got %d", len(runs))
			}
			if runs[0].ID != newer || runs[1].ID != older {
				t.Errorf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
			}
		})
	}
}

func TestLedger_Items(t *testing.T) {
	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := ds.CreateRun(time.Now())
			if err != nil {
				t.Fatalf("CreateRun error: %v", err)
			}
			otherID, err := ds.CreateRun(time.Now())
			if err != nil {
				t.Fatalf("CreateRun error: %v", err)
			}

			items := []Item{
				{RunID: id, Kind: "endpoint", Name: "news", Status: ItemStatusOK, CreatedAt: time.Unix(10, 0)},
				{RunID: id, Kind: "image", Name: "https://x/a.png", Status: ItemStatusFailed, Error: "404", CreatedAt: time.Unix(11, 0)},
				{RunID: otherID, Kind: "endpoint", Name: "events", Status: ItemStatusOK, CreatedAt: time.Unix(12, 0)},
			}
			for _, item := range items {
				if err := ds.AddItem(item); err != nil {
					t.Fatalf("AddItem error: %v", err)
				}
			}

			got, err := ds.GetItems(id)
			if err != nil {
				t.Fatalf("GetItems error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 items, got %d", len(got))
			}
			if got[0].Name != "news" || got[1].Name != "https://x/a.png" {
				t.Errorf("items not returned in insertion order: %q, %q", got[0].Name, got[1].Name)
			}
			if got[1].Error != "404" || got[1].Status != ItemStatusFailed {
				t.Errorf("unexpected failed item %+v", got[1])
			}
			if !got[0].CreatedAt.Equal(time.Unix(10, 0)) {
				t.Errorf("unexpected created_at %v", got[0].CreatedAt)
			}

			empty, err := ds.GetItems("non-existent-id")
			if err != nil {
				t.Fatalf("GetItems(non-existent) error: %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("expected no items, got %d", len(empty))
			}
		})
	}
}

func TestLedger_RunIDsAreUniqueUUIDs(t *testing.T) {
	uuidV4Pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

	for name, ds := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]bool)
			for i := 0; i < 32; i++ {
				id, err := ds.CreateRun(time.Now())
				if err != nil {
					t.Fatalf("CreateRun error: %v", err)
				}
				if !uuidV4Pattern.MatchString(id) {
					t.Fatalf("run id %q is not a UUID v4", id)
				}
				if seen[id] {
					t.Fatalf("duplicate run id %q", id)
				}
				seen[id] = true
			}
		})
	}
}
