package executorhost

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// CheckoutExecutor runs git via exec.CommandContext in the step's working
// directory: a shallow 'git clone --depth 1' when the step's inputs name a
// "repository", otherwise 'git checkout' of the "ref" input, otherwise
// 'git status --short'. When both inputs are set, the ref is not checked
// out after the clone.
type CheckoutExecutor struct{}

func (CheckoutExecutor) Kind() pipeline.StepKind { return pipeline.StepCheckout }
func (CheckoutExecutor) RunnerType() string      { return "host" }

func (CheckoutExecutor) Execute(ctx context.Context, step *pipeline.Step, rc *pipeline.RunContext) (*pipeline.StepResult, error) {
	start := time.Now()
	result := &pipeline.StepResult{Name: displayName(step)}

	repo := step.Inputs["repository"]
	ref := step.Inputs["ref"]
	dir := workingDir(step, rc)

	var out []byte
	var err error
	switch {
	case repo != "":
		out, err = runGit(ctx, dir, "clone", "--depth", "1", repo, dir)
	case ref != "":
		out, err = runGit(ctx, dir, "checkout", ref)
	default:
		out, err = runGit(ctx, dir, "status", "--short")
	}

	result.Duration = time.Since(start)
	result.Output = string(out)
	if err != nil {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Reason = "cancelled"
			return result, nil
		}
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}
	result.Success = true
	return result, nil
}

func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //nolint:gosec // args are step inputs under operator control, not external input
	cmd.Dir = dir
	cmd.Env = secureGitEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git %v: %w", args, err)
	}
	return out, nil
}

// secureGitEnv returns the ambient environment with GIT_TERMINAL_PROMPT=0
// appended so git never prompts interactively; no other variables are
// removed or overridden.
func secureGitEnv() []string {
	env := append([]string{}, os.Environ()...)
	return append(env, "GIT_TERMINAL_PROMPT=0")
}
