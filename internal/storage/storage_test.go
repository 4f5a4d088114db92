package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := InitDB(Config{
		DatabasePath: filepath.Join(t.TempDir(), "runs.db"),
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(mode string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		Mode:             mode,
		WheelsDir:        "/srv/wheels",
		Binary:           "chainver",
		StartedAt:        startedAt,
		DurationMS:       4200,
		Succeeded:        true,
		VerifiedCount:    12,
		TotalCount:       12,
		OverallCoverage:  100,
		ArtifactCoverage: 100,
		FullCoverage:     true,
	}
}

func TestRecordAndGetRun(t *testing.T) {
	db := newTestDB(t)

	run := sampleRun(ModeNormal, time.Now())
	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if run.ID == 0 {
		t.Fatal("RecordRun() did not assign an ID")
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Mode != ModeNormal || got.VerifiedCount != 12 || !got.FullCoverage {
		t.Errorf("GetRun() = %+v", got)
	}
}

func TestRecordRun_Nil(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordRun(nil); !errors.Is(err, ErrNilRun) {
		t.Errorf("RecordRun(nil) error = %v, want ErrNilRun", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetRun(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestLastRun(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)

	older := sampleRun(ModeNormal, base)
	newer := sampleRun(ModeNormal, base.Add(30*time.Minute))
	newer.VerifiedCount = 13
	verbose := sampleRun(ModeVerbose, base.Add(45*time.Minute))

	for _, r := range []*RunRecord{older, newer, verbose} {
		if err := db.RecordRun(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.LastRun(ModeNormal)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if got.VerifiedCount != 13 {
		t.Errorf("LastRun() returned run with VerifiedCount = %d, want 13", got.VerifiedCount)
	}

	if _, err := db.LastRun("bogus"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LastRun(bogus) error = %v, want ErrNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := sampleRun(ModeNormal, base.Add(time.Duration(i)*time.Minute))
		run.TotalCount = i
		if err := db.RecordRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.ListRuns(3)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns(3) = %d records, want 3", len(runs))
	}
	// Newest first.
	if runs[0].TotalCount != 4 {
		t.Errorf("first record TotalCount = %d, want 4", runs[0].TotalCount)
	}

	all, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns(0) error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("ListRuns(0) = %d records, want 5", len(all))
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)

	ok := sampleRun(ModeNormal, time.Now())
	failed := sampleRun(ModeVerbose, time.Now())
	failed.Succeeded = false
	failed.FullCoverage = false
	failed.ErrorMessage = "verification tool exited with status 2"

	for _, r := range []*RunRecord{ok, failed} {
		if err := db.RecordRun(r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats["total_runs"].(int64) != 2 {
		t.Errorf("total_runs = %v", stats["total_runs"])
	}
	if stats["successful_runs"].(int64) != 1 {
		t.Errorf("successful_runs = %v", stats["successful_runs"])
	}
	byMode := stats["runs_by_mode"].(map[string]int64)
	if byMode[ModeNormal] != 1 || byMode[ModeVerbose] != 1 {
		t.Errorf("runs_by_mode = %v", byMode)
	}
}
