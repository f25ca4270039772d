package executorhost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

func TestExecuteRunsScriptAndCapturesOutput(t *testing.T) {
	execs := New()
	var script *Executor
	for _, e := range execs {
		if e.Kind() == pipeline.StepScript {
			script = e
		}
	}
	if script == nil {
		t.Fatal("expected a StepScript executor")
	}

	step := &pipeline.Step{ID: "s1", Kind: pipeline.StepScript, Script: "echo hello-from-step"}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := script.Execute(context.Background(), step, rc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error=%q output=%q", result.Error, result.Output)
	}
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	execs := New()
	var script *Executor
	for _, e := range execs {
		if e.Kind() == pipeline.StepScript {
			script = e
		}
	}
	step := &pipeline.Step{ID: "s1", Kind: pipeline.StepScript, Script: "exit 3"}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := script.Execute(context.Background(), step, rc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for nonzero exit")
	}
	if result.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	execs := New()
	var script *Executor
	for _, e := range execs {
		if e.Kind() == pipeline.StepScript {
			script = e
		}
	}
	step := &pipeline.Step{ID: "s1", Kind: pipeline.StepScript, Script: "sleep 5"}
	rc := pipeline.NewRunContext(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := script.Execute(ctx, step, rc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Cancelled {
		t.Fatal("expected the step to report cancellation")
	}
}

func TestUploadThenDownloadArtifactRoundTrips(t *testing.T) {
	workDir := t.TempDir()
	artifactsDir := t.TempDir()

	src := filepath.Join(workDir, "out.txt")
	if err := os.WriteFile(src, []byte("build output"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	rc := pipeline.NewRunContext(workDir)
	rc.ArtifactsDir = artifactsDir

	step := &pipeline.Step{
		ID:       "upload",
		Kind:     pipeline.StepUploadArtifact,
		Artifact: &pipeline.ArtifactDescriptor{Name: "out", Path: "out.txt"},
	}
	up := UploadArtifactExecutor{}
	result, err := up.Execute(context.Background(), step, rc)
	if err != nil || !result.Success {
		t.Fatalf("upload failed: err=%v result=%+v", err, result)
	}

	downloadDir := t.TempDir()
	downloadStep := &pipeline.Step{
		ID:               "download",
		Kind:             pipeline.StepDownloadArtifact,
		WorkingDirectory: downloadDir,
		Artifact:         &pipeline.ArtifactDescriptor{Name: "out", Path: "restored.txt"},
	}
	down := DownloadArtifactExecutor{}
	result, err = down.Execute(context.Background(), downloadStep, rc)
	if err != nil || !result.Success {
		t.Fatalf("download failed: err=%v result=%+v", err, result)
	}

	data, err := os.ReadFile(filepath.Join(downloadDir, "restored.txt"))
	if err != nil {
		t.Fatalf("reading restored artifact: %v", err)
	}
	if string(data) != "build output" {
		t.Fatalf("restored artifact content = %q, want %q", data, "build output")
	}
}
