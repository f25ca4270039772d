// Package scheduler drives a validated pipeline to completion: the
// per-job state machine, the strictly-sequential step loop within a job,
// runner selection, and cooperative cancellation with a grace period,
// all from spec §4.6.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pdk-cli/pdk/internal/containerdriver"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/filter"
	"github.com/pdk-cli/pdk/internal/mask"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/ports"
	"github.com/pdk-cli/pdk/internal/variable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultGracePeriod is how long executeWithGrace waits, after the step's
// context is cancelled, for the step executor to return before the
// scheduler reports the step as cancelled (spec §5).
const DefaultGracePeriod = 30 * time.Second

// RunnerMode selects where steps execute (spec §4.6 "Runner selection").
type RunnerMode int

const (
	RunnerAuto RunnerMode = iota
	RunnerHost
	RunnerDocker
)

func (m RunnerMode) String() string {
	switch m {
	case RunnerHost:
		return "host"
	case RunnerDocker:
		return "docker"
	default:
		return "auto"
	}
}

// Options configures one Run invocation.
type Options struct {
	Runner        RunnerMode
	Parallel      bool // forbidden together with RunnerHost; see Run
	ParallelCap   int  // worker-pool cap for parallel job execution
	GracePeriod   time.Duration
	FilterOptions filter.Options
	// Progress, if set, is notified as each job starts and finishes so a
	// caller can drive a live bubbletea view instead of waiting for Run
	// to return before showing anything.
	Progress *ProgressHooks
}

// ProgressHooks lets a caller observe job lifecycle transitions as Run
// executes, without the scheduler importing anything UI-related itself.
type ProgressHooks struct {
	OnJobStart  func(id string)
	OnJobFinish func(id string, success bool)
	OnJobSkip   func(id string, reason string)
}

func (h *ProgressHooks) start(id string) {
	if h != nil && h.OnJobStart != nil {
		h.OnJobStart(id)
	}
}

func (h *ProgressHooks) finish(id string, success bool) {
	if h != nil && h.OnJobFinish != nil {
		h.OnJobFinish(id, success)
	}
}

func (h *ProgressHooks) skip(id, reason string) {
	if h != nil && h.OnJobSkip != nil {
		h.OnJobSkip(id, reason)
	}
}

// Scheduler executes an ExecutionPlan-ordered pipeline.
type Scheduler struct {
	registry *Registry
	driver   ports.ContainerDriver
	masker   *mask.Masker
	resolver *variable.Resolver
	expander *variable.Expander

	dockerWarnOnce sync.Once
}

// New builds a Scheduler. driver may be nil if no container driver is
// wired (host-only deployments).
func New(registry *Registry, driver ports.ContainerDriver, masker *mask.Masker, resolver *variable.Resolver) *Scheduler {
	return &Scheduler{
		registry: registry,
		driver:   driver,
		masker:   masker,
		resolver: resolver,
		expander: variable.NewExpander(),
	}
}

// RunResult is the aggregate outcome of one scheduler invocation.
type RunResult struct {
	Success bool
	Jobs    []*pipeline.JobResult
}

// Run executes jobOrder (already topologically sorted, e.g. from
// plan.ExecutionPlan) against p, sequentially by default or concurrently
// in parallel mode (spec §4.6 "Concurrency across jobs").
func (s *Scheduler) Run(ctx context.Context, p *pipeline.Pipeline, jobOrder []string, rc *pipeline.RunContext, opts Options) (*RunResult, error) {
	runnerMode, err := resolveRunnerMode(opts, s.driver, ctx, &s.dockerWarnOnce)
	if err != nil {
		return nil, err
	}
	if opts.Parallel && runnerMode == RunnerHost {
		return nil, errtax.New(errtax.CodeParallelForbidden, "parallel job execution is forbidden in host runner mode (workspace safety)")
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	comp, err := filter.Build(opts.FilterOptions)
	if err != nil {
		return nil, err
	}

	state := &runState{
		results:  make(map[string]*pipeline.JobResult, len(jobOrder)),
		progress: opts.Progress,
	}

	if opts.Parallel && runnerMode != RunnerHost {
		if err := s.runParallel(ctx, p, jobOrder, rc, comp, runnerMode, grace, opts.ParallelCap, state); err != nil {
			return nil, err
		}
	} else {
		s.runSequential(ctx, p, jobOrder, rc, comp, runnerMode, grace, state)
	}

	result := &RunResult{Success: true}
	for _, id := range jobOrder {
		jr, ok := state.results[id]
		if !ok {
			continue
		}
		result.Jobs = append(result.Jobs, jr)
		if !jr.Success {
			result.Success = false
		}
	}
	return result, nil
}

type runState struct {
	mu         sync.Mutex
	results    map[string]*pipeline.JobResult
	anyFailure bool
	progress   *ProgressHooks
}

func (rs *runState) record(jr *pipeline.JobResult) {
	rs.mu.Lock()
	rs.results[jr.ID] = jr
	if !jr.Success {
		rs.anyFailure = true
	}
	rs.mu.Unlock()

	if jr.Skipped {
		rs.progress.skip(jr.ID, jr.Reason)
	} else {
		rs.progress.finish(jr.ID, jr.Success)
	}
}

func (rs *runState) outcome() outcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return outcome{anyFailure: rs.anyFailure}
}

func (rs *runState) dependenciesSucceeded(job *pipeline.Job) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, dep := range job.DependsOn {
		jr, ok := rs.results[dep]
		if !ok || !jr.Success {
			return false
		}
	}
	return true
}

// runSequential walks jobOrder one job at a time, in topological order
// (spec §4.6 default).
func (s *Scheduler) runSequential(ctx context.Context, p *pipeline.Pipeline, jobOrder []string, rc *pipeline.RunContext, comp *filter.Composite, runnerMode RunnerMode, grace time.Duration, state *runState) {
	for _, id := range jobOrder {
		job, ok := p.Jobs[id]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			state.record(skippedJobResult(job, "cancelled before start"))
			continue
		}
		state.progress.start(job.ID)
		jr := s.runJob(ctx, job, rc, comp, runnerMode, grace, state.outcome())
		state.record(jr)
	}
}

// runParallel executes jobs whose dependencies are satisfied
// concurrently, bounded by a semaphore (spec §4.6 "optional parallel
// mode" — forbidden in host mode by the caller).
func (s *Scheduler) runParallel(ctx context.Context, p *pipeline.Pipeline, jobOrder []string, rc *pipeline.RunContext, comp *filter.Composite, runnerMode RunnerMode, grace time.Duration, cap int, state *runState) error {
	if cap <= 0 {
		cap = 4
	}
	sem := semaphore.NewWeighted(int64(cap))
	g, gctx := errgroup.WithContext(ctx)

	remaining := make(map[string]*pipeline.Job, len(jobOrder))
	for _, id := range jobOrder {
		if job, ok := p.Jobs[id]; ok {
			remaining[id] = job
		}
	}

	var mu sync.Mutex
	finished := make(chan struct{}, len(remaining))
	inFlight := 0
	for len(remaining) > 0 {
		var ready []*pipeline.Job
		mu.Lock()
		for id, job := range remaining {
			if allDepsDone(job, state) {
				ready = append(ready, job)
				delete(remaining, id)
			}
		}
		mu.Unlock()

		if len(ready) == 0 {
			if inFlight == 0 {
				break // remaining jobs depend on something that never completed (already-reported cycle)
			}
			<-finished // a running job recorded its result; rescan for newly ready jobs
			inFlight--
			continue
		}

		for _, job := range ready {
			job := job
			if err := sem.Acquire(gctx, 1); err != nil {
				state.record(skippedJobResult(job, "scheduler cancelled"))
				continue
			}
			inFlight++
			g.Go(func() error {
				defer func() { finished <- struct{}{} }()
				defer sem.Release(1)
				if !state.dependenciesSucceeded(job) {
					state.record(skippedJobResult(job, "a dependency did not succeed"))
					return nil
				}
				state.progress.start(job.ID)
				jr := s.runJob(gctx, job, rc, comp, runnerMode, grace, state.outcome())
				state.record(jr)
				return nil
			})
		}
	}
	return g.Wait()
}

func allDepsDone(job *pipeline.Job, state *runState) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	for _, dep := range job.DependsOn {
		if _, done := state.results[dep]; !done {
			return false
		}
	}
	return true
}

// runJob implements the per-job state machine and step loop (spec §4.6).
func (s *Scheduler) runJob(ctx context.Context, job *pipeline.Job, rc *pipeline.RunContext, comp *filter.Composite, runnerMode RunnerMode, grace time.Duration, o outcome) *pipeline.JobResult {
	start := time.Now()
	run, reason := evaluateCondition(job.Condition, o, s.resolver, ctx.Err() != nil)
	if !run {
		jr := skippedJobResult(job, reason)
		jr.Duration = time.Since(start)
		return jr
	}

	s.resolver.SetBuiltin("PDK_JOB", job.ID)
	s.resolver.SetBuiltin("PDK_RUNNER", runnerMode.String())

	jobCtx := ctx
	var cancel context.CancelFunc
	if job.Timeout != nil {
		jobCtx, cancel = context.WithTimeout(ctx, *job.Timeout)
		defer cancel()
	}

	jr := &pipeline.JobResult{ID: job.ID, Name: displayName(job.ID, job.DisplayName), Reason: reason}
	stepOutcome := outcome{}
	continueOnErrorBroke := false

	for i, step := range job.Steps {
		s.resolver.SetBuiltin("PDK_STEP", stepName(step))

		cand := filter.Candidate{Step: step, Index: i + 1, Job: job}
		fr := comp.Evaluate(cand)
		if !fr.Execute {
			jr.Steps = append(jr.Steps, &pipeline.StepResult{Name: stepName(step), Success: true, Skipped: true, Reason: fr.Reason})
			continue
		}

		if continueOnErrorBroke {
			run, reason := evaluateCondition(step.Condition, stepOutcome, s.resolver, jobCtx.Err() != nil)
			if !run || (step.Condition != nil && step.Condition.Kind != pipeline.ConditionFailure && step.Condition.Kind != pipeline.ConditionAlways) {
				jr.Steps = append(jr.Steps, &pipeline.StepResult{Name: stepName(step), Success: true, Skipped: true, Reason: "skipped: a previous step failed"})
				continue
			}
			_ = reason
		}

		sr := s.runStep(jobCtx, job, step, rc, runnerMode, grace)
		jr.Steps = append(jr.Steps, sr)
		if !sr.Success {
			stepOutcome.anyFailure = true
			if !step.ContinueOnError {
				continueOnErrorBroke = true
			}
		}
	}

	// A failed continue-on-error step does not fail the job.
	jr.Success = !continueOnErrorBroke
	jr.Duration = time.Since(start)
	if !jr.Success {
		jr.Error = "one or more steps failed"
	}
	return jr
}

// runStep expands variables, selects the runner, dispatches to the
// step-executor, and applies the output masker.
func (s *Scheduler) runStep(ctx context.Context, job *pipeline.Job, step *pipeline.Step, rc *pipeline.RunContext, runnerMode RunnerMode, grace time.Duration) *pipeline.StepResult {
	expanded, err := s.expandStep(step)
	if err != nil {
		return &pipeline.StepResult{Name: stepName(step), Success: false, Error: err.Error()}
	}

	runnerType := effectiveRunnerType(runnerMode)
	if runnerMode == RunnerDocker {
		health := s.driver.IsHealthy(ctx)
		if !health.Available {
			return &pipeline.StepResult{
				Name:    stepName(step),
				Success: false,
				Error:   errtax.Newf(errtax.CodeDockerUnavailable, "docker runner requested but unavailable: %v", health.Err).Error(),
			}
		}
		rcCopy := *rc
		rcCopy.ContainerImage = containerdriver.ImageForLabel(job.RunnerLabel)
		rc = &rcCopy
	}

	executor, ok := s.registry.lookup(step.Kind, runnerType)
	if !ok {
		return &pipeline.StepResult{
			Name:    stepName(step),
			Success: false,
			Error:   errtax.Newf(errtax.CodeExecutorMissing, "no executor for step kind %q on runner %q", step.Kind, runnerType).Error(),
		}
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if timeout := stepTimeout(step); timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.executeWithGrace(stepCtx, executor, expanded, rc, grace)
	if err != nil {
		return &pipeline.StepResult{Name: stepName(step), Success: false, Error: err.Error()}
	}
	if s.masker != nil {
		result.Output = s.masker.Mask(result.Output)
		result.Error = s.masker.Mask(result.Error)
	}
	return result
}

type execOutcome struct {
	result *pipeline.StepResult
	err    error
}

// executeWithGrace runs executor.Execute to completion under normal
// circumstances. If ctx is cancelled while Execute blocks, the executor
// itself begins its own cooperative shutdown (host/docker executors both
// implement SIGTERM-then-SIGKILL internally); executeWithGrace gives it
// up to grace beyond that to actually return before giving up and
// reporting the step as cancelled without force-abandoning the
// goroutine (spec §5 "bounded grace period... then force-termination").
func (s *Scheduler) executeWithGrace(ctx context.Context, executor ports.StepExecutor, step *pipeline.Step, rc *pipeline.RunContext, grace time.Duration) (*pipeline.StepResult, error) {
	resultCh := make(chan execOutcome, 1)
	go func() {
		r, err := executor.Execute(ctx, step, rc)
		resultCh <- execOutcome{result: r, err: err}
	}()

	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-ctx.Done():
		select {
		case out := <-resultCh:
			return out.result, out.err
		case <-time.After(grace):
			return &pipeline.StepResult{Name: stepName(step), Success: false, Cancelled: true, Reason: "did not exit within the grace period"}, nil
		}
	}
}

func (s *Scheduler) expandStep(step *pipeline.Step) (*pipeline.Step, error) {
	clone := *step
	var err error
	if clone.Script != "" {
		clone.Script, err = s.expander.Expand(step.Script, s.resolver)
		if err != nil {
			return nil, fmt.Errorf("expanding script: %w", err)
		}
	}
	if clone.WorkingDirectory != "" {
		clone.WorkingDirectory, err = s.expander.Expand(step.WorkingDirectory, s.resolver)
		if err != nil {
			return nil, fmt.Errorf("expanding working directory: %w", err)
		}
	}
	if len(step.Env) > 0 {
		clone.Env, err = s.expander.ExpandMap(step.Env, s.resolver)
		if err != nil {
			return nil, fmt.Errorf("expanding step environment: %w", err)
		}
	}
	if len(step.Inputs) > 0 {
		clone.Inputs, err = s.expander.ExpandMap(step.Inputs, s.resolver)
		if err != nil {
			return nil, fmt.Errorf("expanding step inputs: %w", err)
		}
	}
	return &clone, nil
}

func stepTimeout(step *pipeline.Step) time.Duration {
	if v, ok := step.Inputs["timeout"]; ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}

func effectiveRunnerType(mode RunnerMode) string {
	switch mode {
	case RunnerHost:
		return "host"
	case RunnerDocker:
		return "docker"
	default:
		return ""
	}
}

// resolveRunnerMode applies spec §4.6's "auto uses docker when healthy,
// else host" policy and enforces "docker required but unavailable fails".
func resolveRunnerMode(opts Options, driver ports.ContainerDriver, ctx context.Context, warnOnce *sync.Once) (RunnerMode, error) {
	switch opts.Runner {
	case RunnerHost:
		warnOnce.Do(func() {
			slog.Warn("running steps directly on the host; isolation is reduced compared to the docker runner")
		})
		return RunnerHost, nil
	case RunnerDocker:
		if driver == nil {
			return 0, errtax.New(errtax.CodeDockerUnavailable, "docker runner requested but no container driver is configured")
		}
		health := driver.IsHealthy(ctx)
		if !health.Available {
			return 0, errtax.Newf(errtax.CodeDockerUnavailable, "docker runner requested but unavailable: %v", health.Err)
		}
		return RunnerDocker, nil
	default:
		if driver != nil {
			if health := driver.IsHealthy(ctx); health.Available {
				return RunnerDocker, nil
			}
		}
		warnOnce.Do(func() {
			slog.Warn("docker runner unavailable; falling back to host execution with reduced isolation")
		})
		return RunnerHost, nil
	}
}

func skippedJobResult(job *pipeline.Job, reason string) *pipeline.JobResult {
	return &pipeline.JobResult{ID: job.ID, Name: displayName(job.ID, job.DisplayName), Success: true, Skipped: true, Reason: reason}
}

func displayName(id, name string) string {
	if name != "" {
		return name
	}
	return id
}

func stepName(s *pipeline.Step) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}
