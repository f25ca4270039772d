package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleJobs() []*pipeline.JobResult {
	return []*pipeline.JobResult{
		{
			ID:       "build",
			Name:     "build",
			Success:  true,
			Duration: 2 * time.Second,
			Steps: []*pipeline.StepResult{
				{Name: "compile", Success: true, ExitCode: 0, Duration: time.Second},
				{Name: "test", Success: true, ExitCode: 0, Duration: time.Second},
			},
		},
		{
			ID:       "deploy",
			Name:     "deploy",
			Success:  false,
			Error:    "step exited with status 1",
			Duration: 500 * time.Millisecond,
			Steps: []*pipeline.StepResult{
				{Name: "push", Success: false, ExitCode: 1, Error: "step exited with status 1", Duration: 500 * time.Millisecond},
			},
		},
	}
}

func TestRecordAndRecentRuns(t *testing.T) {
	s := openTestStore(t)
	started := time.Now().Add(-3 * time.Second)

	runID, err := s.RecordRun("ci.yml", "sample", "github", "host", false, sampleJobs(), started)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	runs, err := s.RecentRuns("ci.yml", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.RunID != runID {
		t.Errorf("RunID = %q, want %q", run.RunID, runID)
	}
	if run.Success {
		t.Error("expected run to be recorded as failed")
	}
	if len(run.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(run.Jobs))
	}
	if run.Jobs[0].JobID != "build" || !run.Jobs[0].Success {
		t.Errorf("unexpected build job record: %+v", run.Jobs[0])
	}
	if len(run.Jobs[0].Steps) != 2 {
		t.Fatalf("expected 2 steps in build job, got %d", len(run.Jobs[0].Steps))
	}
	if run.Jobs[1].JobID != "deploy" || run.Jobs[1].Success {
		t.Errorf("unexpected deploy job record: %+v", run.Jobs[1])
	}
	if run.Jobs[1].Steps[0].ExitCode != 1 {
		t.Errorf("deploy step exit code = %d, want 1", run.Jobs[1].Steps[0].ExitCode)
	}
}

func TestRecentRunsFiltersByPipelineFile(t *testing.T) {
	s := openTestStore(t)
	started := time.Now()

	if _, err := s.RecordRun("ci.yml", "sample", "github", "host", true, sampleJobs(), started); err != nil {
		t.Fatalf("RecordRun ci.yml: %v", err)
	}
	if _, err := s.RecordRun("azure-pipelines.yml", "sample", "azuredevops", "host", true, sampleJobs(), started); err != nil {
		t.Fatalf("RecordRun azure-pipelines.yml: %v", err)
	}

	runs, err := s.RecentRuns("ci.yml", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run for ci.yml, got %d", len(runs))
	}
	if runs[0].PipelineFile != "ci.yml" {
		t.Errorf("PipelineFile = %q, want ci.yml", runs[0].PipelineFile)
	}
}

func TestRecentRunsOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	firstID, err := s.RecordRun("ci.yml", "sample", "github", "host", true, sampleJobs(), older)
	if err != nil {
		t.Fatalf("RecordRun (older): %v", err)
	}
	secondID, err := s.RecordRun("ci.yml", "sample", "github", "host", false, sampleJobs(), newer)
	if err != nil {
		t.Fatalf("RecordRun (newer): %v", err)
	}

	runs, err := s.RecentRuns("ci.yml", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != secondID || runs[1].RunID != firstID {
		t.Fatalf("expected newest-first order, got %v", []string{runs[0].RunID, runs[1].RunID})
	}
}

func TestRecentRunsRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.RecordRun("ci.yml", "sample", "github", "host", true, sampleJobs(), time.Now()); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := s.RecentRuns("ci.yml", 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs (limit), got %d", len(runs))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s1.RecordRun("ci.yml", "sample", "github", "host", true, sampleJobs(), time.Now()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	runs, err := s2.RecentRuns("ci.yml", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected run to persist across reopen, got %d runs", len(runs))
	}
}
