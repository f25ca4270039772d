package scheduler

import (
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/ports"
)

type executorKey struct {
	kind       pipeline.StepKind
	runnerType string
}

// Registry is the engine's ports.ExecutorValidator and executor lookup
// table in one: the dry-run validator asks it "can this run" and the
// scheduler asks it "give me the executor" against the same map.
type Registry struct {
	byExact map[executorKey]ports.StepExecutor
	// byKind indexes executors that serve both runner types (RunnerType() == "").
	byKind map[pipeline.StepKind]ports.StepExecutor
}

// NewRegistry builds an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{
		byExact: make(map[executorKey]ports.StepExecutor),
		byKind:  make(map[pipeline.StepKind]ports.StepExecutor),
	}
}

// Register adds e, indexed by its own Kind()/RunnerType().
func (r *Registry) Register(e ports.StepExecutor) {
	if e.RunnerType() == "" {
		r.byKind[e.Kind()] = e
		return
	}
	r.byExact[executorKey{kind: e.Kind(), runnerType: e.RunnerType()}] = e
}

// lookup returns the executor for kind on runnerType, preferring an
// exact runner-type match over a both-runners registration.
func (r *Registry) lookup(kind pipeline.StepKind, runnerType string) (ports.StepExecutor, bool) {
	if runnerType != "" {
		if e, ok := r.byExact[executorKey{kind: kind, runnerType: runnerType}]; ok {
			return e, true
		}
	}
	if e, ok := r.byKind[kind]; ok {
		return e, true
	}
	// "auto"/"" queries: accept any registered runner type for this kind.
	if e, ok := r.byExact[executorKey{kind: kind, runnerType: "host"}]; ok {
		return e, true
	}
	if e, ok := r.byExact[executorKey{kind: kind, runnerType: "docker"}]; ok {
		return e, true
	}
	return nil, false
}

// HasExecutor implements validate.ExecutorValidator / ports.ExecutorValidator.
func (r *Registry) HasExecutor(kind pipeline.StepKind, runnerType string) bool {
	_, ok := r.lookup(kind, runnerType)
	return ok
}

// GetExecutorName implements ports.ExecutorValidator.
func (r *Registry) GetExecutorName(kind pipeline.StepKind, runnerType string) string {
	if _, ok := r.lookup(kind, runnerType); ok {
		return kind.String() + "@" + runnerTypeOrAuto(runnerType)
	}
	return ""
}

// GetAvailableStepTypes implements ports.ExecutorValidator.
func (r *Registry) GetAvailableStepTypes(runnerType string) []pipeline.StepKind {
	seen := make(map[pipeline.StepKind]bool)
	var out []pipeline.StepKind
	for k := range r.byKind {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for key := range r.byExact {
		if runnerType != "" && key.runnerType != runnerType {
			continue
		}
		if !seen[key.kind] {
			seen[key.kind] = true
			out = append(out, key.kind)
		}
	}
	return out
}

func runnerTypeOrAuto(rt string) string {
	if rt == "" {
		return "auto"
	}
	return rt
}
