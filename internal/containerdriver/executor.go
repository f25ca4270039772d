package containerdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/ports"
)

// dockerKinds mirrors executorhost's scriptKinds: every step kind that
// reduces to "run this script with this shell", now inside a container
// instead of directly on the host.
var dockerKinds = []pipeline.StepKind{
	pipeline.StepScript,
	pipeline.StepNpm,
	pipeline.StepDotnet,
	pipeline.StepPython,
	pipeline.StepMaven,
	pipeline.StepGradle,
	pipeline.StepPowerShell,
	pipeline.StepFileOperation,
}

// Executor runs one step kind's script inside a throwaway container
// started from the job's resolved runner image (see image.go).
type Executor struct {
	kind   pipeline.StepKind
	driver ports.ContainerDriver
}

// NewExecutors returns one Executor per kind in dockerKinds, all sharing
// driver, ready to register with a scheduler's executor registry.
func NewExecutors(driver ports.ContainerDriver) []*Executor {
	out := make([]*Executor, 0, len(dockerKinds))
	for _, k := range dockerKinds {
		out = append(out, &Executor{kind: k, driver: driver})
	}
	return out
}

func (e *Executor) Kind() pipeline.StepKind { return e.kind }
func (e *Executor) RunnerType() string      { return "docker" }

// Execute starts a container from rc.ContainerImage, runs step.Script
// inside it via 'docker exec', collects its logs, and tears the
// container down.
func (e *Executor) Execute(ctx context.Context, step *pipeline.Step, rc *pipeline.RunContext) (*pipeline.StepResult, error) {
	start := time.Now()
	result := &pipeline.StepResult{Name: displayName(step)}

	if step.Script == "" {
		result.Success = true
		result.Reason = "no script to run"
		result.Duration = time.Since(start)
		return result, nil
	}

	image := ""
	if rc != nil {
		image = rc.ContainerImage
	}
	if image == "" {
		image = fallbackImage
	}

	env := buildEnv(step, rc)
	id, err := e.driver.StartContainer(ctx, image, env)
	if err != nil {
		return nil, fmt.Errorf("starting container for step %q: %w", displayName(step), err)
	}
	defer func() { _ = e.driver.Stop(context.Background(), id) }()

	shell := step.EffectiveShell()
	exitCode, err := e.driver.Execute(ctx, id, []string{step.Script}, shell)
	output, logErr := e.driver.CollectOutput(ctx, id)

	result.Duration = time.Since(start)
	result.Output = output
	if logErr != nil && output == "" {
		result.Output = logErr.Error()
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		result.Success = false
		result.Reason = "cancelled"
		return result, nil
	}

	if err != nil {
		return nil, fmt.Errorf("running step %q in container: %w", displayName(step), err)
	}

	result.ExitCode = exitCode
	result.Success = exitCode == 0
	if !result.Success {
		result.Error = fmt.Sprintf("step exited with status %d", exitCode)
	}
	return result, nil
}

func buildEnv(step *pipeline.Step, rc *pipeline.RunContext) map[string]string {
	env := make(map[string]string)
	if rc != nil {
		for k, v := range rc.Variables {
			env[k] = v
		}
		for k, v := range rc.Secrets {
			env[k] = v
		}
	}
	for k, v := range step.Env {
		env[k] = v
	}
	return env
}

func displayName(s *pipeline.Step) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}
