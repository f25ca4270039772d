package executorhost

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// UploadArtifactExecutor copies the step's artifact path into the run's
// artifact directory so later jobs (or DownloadArtifactExecutor) can
// retrieve it, a local-disk stand-in for a hosted CI's artifact service.
type UploadArtifactExecutor struct{}

func (UploadArtifactExecutor) Kind() pipeline.StepKind { return pipeline.StepUploadArtifact }
func (UploadArtifactExecutor) RunnerType() string      { return "host" }

func (UploadArtifactExecutor) Execute(ctx context.Context, step *pipeline.Step, rc *pipeline.RunContext) (*pipeline.StepResult, error) {
	return copyArtifact(step, rc, true)
}

// DownloadArtifactExecutor copies a previously uploaded artifact back
// into the job's working directory.
type DownloadArtifactExecutor struct{}

func (DownloadArtifactExecutor) Kind() pipeline.StepKind { return pipeline.StepDownloadArtifact }
func (DownloadArtifactExecutor) RunnerType() string      { return "host" }

func (DownloadArtifactExecutor) Execute(ctx context.Context, step *pipeline.Step, rc *pipeline.RunContext) (*pipeline.StepResult, error) {
	return copyArtifact(step, rc, false)
}

func copyArtifact(step *pipeline.Step, rc *pipeline.RunContext, upload bool) (*pipeline.StepResult, error) {
	start := time.Now()
	result := &pipeline.StepResult{Name: displayName(step)}

	if step.Artifact == nil || step.Artifact.Name == "" {
		result.Success = false
		result.Error = "artifact step has no artifact descriptor"
		result.Duration = time.Since(start)
		return result, nil
	}
	if rc == nil || rc.ArtifactsDir == "" {
		result.Success = false
		result.Error = "no artifacts directory configured for this run"
		result.Duration = time.Since(start)
		return result, nil
	}

	stored := filepath.Join(rc.ArtifactsDir, step.Artifact.Name)
	local := step.Artifact.Path
	if local == "" {
		local = step.Artifact.Name
	}
	if !filepath.IsAbs(local) {
		local = filepath.Join(workingDir(step, rc), local)
	}

	var src, dst string
	if upload {
		src, dst = local, stored
	} else {
		src, dst = stored, local
	}

	if err := copyFile(src, dst); err != nil {
		result.Success = false
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path is derived from the pipeline's own artifact descriptor
	if err != nil {
		return fmt.Errorf("opening artifact source %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating artifact destination directory: %w", err)
	}
	out, err := os.Create(dst) //nolint:gosec // path is derived from the pipeline's own artifact descriptor
	if err != nil {
		return fmt.Errorf("creating artifact destination %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying artifact %q to %q: %w", src, dst, err)
	}
	return nil
}
