// Package ports declares the external collaborator interfaces named in
// spec §6.5. Their internals are explicitly out of scope for this engine;
// only the contracts live here, plus the handful of reference
// implementations under internal/provider, internal/executorhost and
// internal/containerdriver that exist to exercise the engine end to end.
package ports

import (
	"context"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// Parser turns pipeline text into the provider-agnostic IR (spec §6.5).
type Parser interface {
	Parse(text []byte) (*pipeline.Pipeline, error)
	ParseFile(path string) (*pipeline.Pipeline, error)
	CanParse(path string) bool
}

// StepExecutor performs one step kind on one runner variant.
type StepExecutor interface {
	Kind() pipeline.StepKind
	RunnerType() string // "docker", "host", or "" for both
	Execute(ctx context.Context, step *pipeline.Step, rc *pipeline.RunContext) (*pipeline.StepResult, error)
}

// ExecutorValidator answers whether an executor exists for a given
// (step kind, runner type) pair, used by the dry-run validation pipeline's
// executor-resolution phase.
type ExecutorValidator interface {
	HasExecutor(kind pipeline.StepKind, runnerType string) bool
	GetExecutorName(kind pipeline.StepKind, runnerType string) string
	GetAvailableStepTypes(runnerType string) []pipeline.StepKind
}

// ContainerHealth reports the container driver's availability.
type ContainerHealth struct {
	Available bool
	Version   string
	Platform  string
	Err       error
}

// ContainerDriver is the opaque port to whatever runs containers locally.
type ContainerDriver interface {
	StartContainer(ctx context.Context, image string, env map[string]string) (string, error)
	Execute(ctx context.Context, id string, command []string, shell string) (int, error)
	CollectOutput(ctx context.Context, id string) (string, error)
	Stop(ctx context.Context, id string) error
	IsHealthy(ctx context.Context) ContainerHealth
}

// Masker redacts registered secret substrings from text streams.
type Masker interface {
	RegisterSecret(value string)
	Mask(text string) string
}
