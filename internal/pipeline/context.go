package pipeline

import "log/slog"

// RunContext is the per-invocation state the scheduler owns (spec §3).
// NewRunContext creates its Secrets map empty; nothing in this package
// hands it to the masker.
type RunContext struct {
	WorkingDirectory string
	Variables        map[string]string
	Secrets          map[string]string
	ArtifactsDir     string
	PreferContainer  bool
	// ContainerImage is the image the docker runner should start for the
	// step currently being dispatched; the scheduler sets it per job from
	// Job.RunnerLabel before invoking a docker-runner StepExecutor.
	ContainerImage   string
	JobSelector      []string
	StepSelector     []string
	LogLevel         slog.Level
}

// NewRunContext builds a RunContext with initialized maps.
func NewRunContext(workDir string) *RunContext {
	return &RunContext{
		WorkingDirectory: workDir,
		Variables:        make(map[string]string),
		Secrets:          make(map[string]string),
	}
}
