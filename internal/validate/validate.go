// Package validate implements the four-phase dry-run validation pipeline
// from spec §4 "Validation" and §6.2: Schema, Executor resolution,
// Variable, Dependency. Each phase runs in order and contributes errors
// and warnings to a DryRunResult; a later phase still runs even if an
// earlier one produced errors, so a single dry run surfaces as much as
// possible in one pass.
package validate

import (
	"fmt"
	"time"

	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/plan"
	"github.com/pdk-cli/pdk/internal/variable"
)

// Phase names, also used as keys into DryRunResult.PhaseDurations.
const (
	PhaseSchema     = "schema"
	PhaseExecutor   = "executor"
	PhaseVariable   = "variable"
	PhaseDependency = "dependency"
)

// ExecutorValidator is the minimal surface the Executor phase needs;
// satisfied by *ports.ExecutorValidator implementations.
type ExecutorValidator interface {
	HasExecutor(kind pipeline.StepKind, runnerType string) bool
}

// Resolve is satisfied by *variable.Resolver; accepted here so tests can
// supply a fake.
type Resolve interface {
	Resolve(name string) (string, bool)
}

// DryRunResult aggregates every phase's findings plus, on success, the
// ExecutionPlan ready for the scheduler to run (spec §4, §6.2).
type DryRunResult struct {
	Errors         []*errtax.Error
	Warnings       []*errtax.Error
	PhaseDurations map[string]time.Duration
	Plan           *plan.ExecutionPlan
}

// OK reports whether the dry run found no blocking errors.
func (r *DryRunResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *DryRunResult) addError(err *errtax.Error) {
	r.Errors = append(r.Errors, err)
}

func (r *DryRunResult) addWarning(err *errtax.Error) {
	r.Warnings = append(r.Warnings, err)
}

// Options configures a Run: the runner type steps will execute under
// (spec §4's "auto"/"host"/"docker" selection affects which executors
// count as available). The Variable phase builds its own expander.
type Options struct {
	RunnerType string // "host", "docker", or "" for "auto" (both count)
}

// Run executes all four phases in order against p and returns the
// aggregated result. It never returns a Go error itself; all findings are
// carried as errtax.Errors inside DryRunResult.
func Run(p *pipeline.Pipeline, execValidator ExecutorValidator, resolver Resolve, opts Options) *DryRunResult {
	result := &DryRunResult{PhaseDurations: make(map[string]time.Duration)}

	timed(result, PhaseSchema, func() { runSchemaPhase(p, result) })
	timed(result, PhaseExecutor, func() { runExecutorPhase(p, execValidator, opts, result) })
	timed(result, PhaseVariable, func() { runVariablePhase(p, resolver, result) })
	timed(result, PhaseDependency, func() { runDependencyPhase(p, result) })

	if result.OK() {
		result.Plan = plan.Build(p, resolver, nil)
	}
	return result
}

func timed(result *DryRunResult, name string, fn func()) {
	start := time.Now()
	fn()
	result.PhaseDurations[name] = time.Since(start)
}

// runSchemaPhase checks structural well-formedness: every job has at
// least one step, every step has a kind, script-kind steps have
// non-empty scripts, and conditions are well-formed (spec §3/§4).
func runSchemaPhase(p *pipeline.Pipeline, result *DryRunResult) {
	if len(p.Jobs) == 0 {
		result.addError(errtax.New(errtax.CodeSchemaMissingField, "pipeline defines no jobs"))
		return
	}
	for _, job := range p.OrderedJobs() {
		if len(job.Steps) == 0 {
			result.addError(errtax.Newf(errtax.CodeSchemaMissingField, "job %q defines no steps", job.ID))
		}
		if cond := job.Condition; cond != nil {
			validateCondition(*cond, fmt.Sprintf("job %q", job.ID), result)
		}
		for _, s := range job.Steps {
			if s.Kind == pipeline.StepUnknown {
				result.addError(errtax.Newf(errtax.CodeSchemaUnknownKind, "step %q in job %q has an unrecognized kind", stepName(s), job.ID))
			}
			if s.Kind == pipeline.StepScript && s.Script == "" {
				result.addError(errtax.Newf(errtax.CodeSchemaEmptyScript, "script step %q in job %q has an empty script", stepName(s), job.ID))
			}
			if s.Condition != nil {
				validateCondition(*s.Condition, fmt.Sprintf("step %q in job %q", stepName(s), job.ID), result)
			}
		}
	}
}

func validateCondition(cond pipeline.Condition, where string, result *DryRunResult) {
	if cond.Kind == pipeline.ConditionExpression && cond.Expr == "" {
		result.addError(errtax.Newf(errtax.CodeSchemaBadCondition, "%s has an empty expression condition", where))
	}
}

// runExecutorPhase checks that every step kind has a registered executor
// for the runner type it would actually run under (spec §6.2 "executor
// resolution").
func runExecutorPhase(p *pipeline.Pipeline, ev ExecutorValidator, opts Options, result *DryRunResult) {
	if ev == nil {
		return
	}
	runnerType := opts.RunnerType
	for _, job := range p.OrderedJobs() {
		for _, s := range job.Steps {
			if s.Kind == pipeline.StepUnknown {
				continue // already reported by the schema phase
			}
			if !ev.HasExecutor(s.Kind, runnerType) {
				result.addError(errtax.Newf(errtax.CodeExecutorMissing, "no executor registered for step kind %q on runner %q (step %q in job %q)", s.Kind, runnerTypeLabel(runnerType), stepName(s), job.ID))
			}
		}
	}
}

func runnerTypeLabel(rt string) string {
	if rt == "" {
		return "auto"
	}
	return rt
}

// runVariablePhase expands every step's script, env and input values and
// reports unresolvable required references or syntax errors without
// mutating the pipeline (spec §4.1/§4.2). Undefined-but-optional
// references surface as warnings (CodeVariableUndefined), matching the
// expander's own "bare undefined expands to empty string" behavior.
func runVariablePhase(p *pipeline.Pipeline, r Resolve, result *DryRunResult) {
	if r == nil {
		return
	}
	expander := variable.NewExpander()
	for _, job := range p.OrderedJobs() {
		for _, s := range job.Steps {
			texts := map[string]string{"script": s.Script}
			for k, v := range s.Env {
				texts["env "+k] = v
			}
			for k, v := range s.Inputs {
				texts["input "+k] = v
			}
			for field, text := range texts {
				if text == "" || !expander.ContainsVariables(text) {
					continue
				}
				if _, err := expander.Expand(text, r); err != nil {
					if pe, ok := err.(*errtax.Error); ok {
						result.addError(pe.WithContext(&errtax.Context{Job: job.ID, Step: stepName(s)}))
						continue
					}
					result.addError(errtax.Newf(errtax.CodeVariableSyntax, "%s: %v", field, err))
					continue
				}
				for _, name := range expander.ExtractNames(text) {
					if _, ok := r.Resolve(name); !ok {
						result.addWarning(errtax.Newf(errtax.CodeVariableUndefined, "variable %q referenced in %s of step %q (job %q) is not defined; expands to empty string", name, field, stepName(s), job.ID))
					}
				}
			}
		}
	}
}

// runDependencyPhase checks job.DependsOn references for self-loops,
// missing targets, and cycles (spec §8 scenario S3); cycles are found by
// findCycle's depth-first search. It computes no topological order
// itself: plan.Build does that, so the Dependency phase's sole
// responsibility stays validation.
func runDependencyPhase(p *pipeline.Pipeline, result *DryRunResult) {
	for _, job := range p.OrderedJobs() {
		for _, dep := range job.DependsOn {
			if dep == job.ID {
				result.addError(errtax.Newf(errtax.CodeDependencySelfLoop, "job %q depends on itself", job.ID))
				continue
			}
			if _, ok := p.Jobs[dep]; !ok {
				result.addError(errtax.Newf(errtax.CodeDependencyMissing, "job %q depends on undefined job %q", job.ID, dep))
			}
		}
	}

	if cycle := findCycle(p); cycle != nil {
		result.addError(errtax.Newf(errtax.CodeDependencyCycle, "circular job dependency: %s", joinCycle(cycle)))
	}
}

// findCycle runs a DFS with a recursion-stack set over job.DependsOn
// edges and returns the first cycle it finds, or nil if the graph is a
// DAG.
func findCycle(p *pipeline.Pipeline) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(p.Jobs))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		switch state[id] {
		case done:
			return nil
		case visiting:
			// Found the back-edge; trim path to the cycle itself.
			for i, pathID := range path {
				if pathID == id {
					return append(append([]string{}, path[i:]...), id)
				}
			}
			return append(append([]string{}, path...), id)
		}
		state[id] = visiting
		path = append(path, id)
		job, ok := p.Jobs[id]
		if ok {
			for _, dep := range job.DependsOn {
				if dep == id {
					continue // self-loop already reported above
				}
				if _, exists := p.Jobs[dep]; !exists {
					continue // missing-dependency already reported above
				}
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range p.JobOrder {
		if state[id] == unvisited {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func joinCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

func stepName(s *pipeline.Step) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}
