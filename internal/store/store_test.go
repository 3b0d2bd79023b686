package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fentz26/litscreen/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNew_MigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	// Create
	run, err := s.CreateRun("task-1", []string{"a.csv", "b.ris"})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Status != models.TaskStatusProcessing {
		t.Errorf("Expected status processing, got %s", run.Status)
	}

	// Finish
	result := &models.Result{
		Stats: models.ScreeningStats{Total: 10, Kept: 7, Excluded: 3},
		Dedup: models.DedupResult{OriginalCount: 10, FinalCount: 10, Method: "doi_title"},
	}
	if err := s.FinishRun("task-1", models.TaskStatusCompleted, result, ""); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	// Get
	got, err := s.GetRun("task-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected run to exist")
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
	if got.Kept != 7 || got.Excluded != 3 || got.Total != 10 {
		t.Errorf("Unexpected counts: %+v", got)
	}
	if len(got.Files) != 2 || got.Files[1] != "b.ris" {
		t.Errorf("Unexpected files: %v", got.Files)
	}
	if got.EndedAt == nil {
		t.Error("Expected ended_at to be set")
	}
}

func TestFinishRun_Failed(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.CreateRun("task-err", nil)
	if err := s.FinishRun("task-err", models.TaskStatusError, nil, "keyword stage failed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	got, _ := s.GetRun("task-err")
	if got.Error != "keyword stage failed" {
		t.Errorf("Unexpected error message: %q", got.Error)
	}

	if err := s.FinishRun("missing", models.TaskStatusError, nil, "x"); err == nil {
		t.Error("Expected error for unknown run")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	got, err := s.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Error("Expected nil for unknown run")
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.CreateRun("r1", nil)
	s.CreateRun("r2", nil)
	s.FinishRun("r2", models.TaskStatusCompleted, &models.Result{}, "")

	runs, err := s.ListRuns("", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(runs))
	}

	// List with filter
	runs, err = s.ListRuns("completed", 10)
	if err != nil {
		t.Fatalf("ListRuns with filter failed: %v", err)
	}
	if len(runs) != 1 || runs[0].TaskID != "r2" {
		t.Errorf("Expected only r2, got %+v", runs)
	}
}

func TestDecisions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.CreateRun("task-1", nil)
	decisions := []models.ExclusionDecision{
		{TaskID: "task-1", RecordID: "a", Title: "Kept paper", Excluded: false},
		{TaskID: "task-1", RecordID: "b", Title: "Surgery robots", DOI: "10.1/x", Excluded: true, Reason: "Title: 'surgery'"},
	}
	if err := s.WriteDecisions(decisions); err != nil {
		t.Fatalf("WriteDecisions failed: %v", err)
	}

	all, err := s.GetDecisions("task-1", false)
	if err != nil {
		t.Fatalf("GetDecisions failed: %v", err)
	}
	if len(all) != 2 || all[0].RecordID != "a" {
		t.Errorf("Unexpected decisions: %+v", all)
	}

	excluded, _ := s.GetDecisions("task-1", true)
	if len(excluded) != 1 {
		t.Fatalf("Expected 1 excluded decision, got %d", len(excluded))
	}
	if excluded[0].Reason != "Title: 'surgery'" || excluded[0].DOI != "10.1/x" || !excluded[0].Excluded {
		t.Errorf("Unexpected decision: %+v", excluded[0])
	}

	if err := s.WriteDecisions(nil); err != nil {
		t.Errorf("empty WriteDecisions should be a no-op: %v", err)
	}
}

func TestPDR(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	pdr, err := s.WritePDR("task.submit", "abc123", "success", "task-1", "2 files")
	if err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}
	if pdr.ID == "" {
		t.Error("PDR ID should not be empty")
	}
	s.WritePDR("task.complete", "def456", "success", "task-1", "")
	s.WritePDR("task.submit", "zzz", "success", "task-2", "")

	entries, err := s.ListPDR("task-1")
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "task.submit" || entries[1].Action != "task.complete" {
		t.Errorf("Unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}

	all, _ := s.ListPDR("")
	if len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}
}
