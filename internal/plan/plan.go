// Package plan builds the ExecutionPlan the dry-run validator hands to
// the scheduler: a topologically ordered, read-only rendering of the
// pipeline with runtime placeholders rewritten for display (spec §4,
// §6.2, §8 scenario S3).
package plan

import (
	"github.com/pdk-cli/pdk/internal/containerdriver"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/variable"
)

// Masker redacts registered secret substrings; satisfied by *mask.Masker.
type Masker interface {
	Mask(text string) string
}

// StepPlanNode is one step's planned view: what will run and why, with
// ${NAME}/${{ expr }} sites resolved and masked before truncation (spec
// §4.5's "resolved & masked variables"), so a dry-run render shows what
// will actually execute rather than raw placeholder syntax.
type StepPlanNode struct {
	ID             string
	DisplayName    string
	Kind           pipeline.StepKind
	ScriptPreview  string // resolved, masked, truncated to previewLength characters
	WorkingDir     string
	ContinueOnErr  bool
	ContainerImage string // non-empty only when Kind would run under the docker runner
}

const previewLength = 100

// JobPlanNode is one job's planned view, with its steps in declared order.
type JobPlanNode struct {
	ID          string
	DisplayName string
	RunnerLabel string
	DependsOn   []string
	Steps       []StepPlanNode
}

// ExecutionPlan is the ordered, renderable result of a successful dry run.
type ExecutionPlan struct {
	PipelineName string
	Provider     pipeline.Provider
	Jobs         []JobPlanNode // topologically sorted by DependsOn
}

// Build renders p into an ExecutionPlan. It assumes p has already passed
// the Dependency phase (no cycles, no missing/self-loop references);
// callers that haven't validated first get an ExecutionPlan built from
// declaration order as a fallback via topoSort's degenerate case.
//
// resolver and masker are both optional: when resolver is nil, previews
// fall back to rewriting only the ${{ expr }} runtime sites, matching the
// un-resolved behavior of a pipeline whose Variable phase hasn't run yet.
func Build(p *pipeline.Pipeline, resolver variable.Resolve, masker Masker) *ExecutionPlan {
	order := topoSort(p)
	expander := variable.NewExpander()

	plan := &ExecutionPlan{PipelineName: p.Name, Provider: p.Provider}
	for _, id := range order {
		job, ok := p.Jobs[id]
		if !ok {
			continue
		}
		node := JobPlanNode{
			ID:          job.ID,
			DisplayName: job.DisplayName,
			RunnerLabel: job.RunnerLabel,
			DependsOn:   append([]string{}, job.DependsOn...),
		}
		for _, s := range job.Steps {
			plannedNode := StepPlanNode{
				ID:            s.ID,
				DisplayName:   s.DisplayName,
				Kind:          s.Kind,
				ScriptPreview: renderPreview(s.Script, expander, resolver, masker),
				WorkingDir:    s.WorkingDirectory,
				ContinueOnErr: s.ContinueOnError,
			}
			if usesDockerRunner(s.Kind) {
				plannedNode.ContainerImage = containerdriver.ImageForLabel(job.RunnerLabel)
			}
			node.Steps = append(node.Steps, plannedNode)
		}
		plan.Jobs = append(plan.Jobs, node)
	}
	return plan
}

func usesDockerRunner(kind pipeline.StepKind) bool {
	switch kind {
	case pipeline.StepScript, pipeline.StepNpm, pipeline.StepDotnet, pipeline.StepPython,
		pipeline.StepMaven, pipeline.StepGradle, pipeline.StepPowerShell, pipeline.StepFileOperation:
		return true
	default:
		return false
	}
}

// renderPreview resolves variable references (when resolver is given),
// masks secrets (when masker is given), rewrites any remaining runtime
// placeholders, and truncates to previewLength runes.
func renderPreview(script string, expander *variable.Expander, resolver variable.Resolve, masker Masker) string {
	rendered := script
	if resolver != nil {
		if expanded, err := expander.Expand(script, resolver); err == nil {
			rendered = expanded
		}
	}
	rendered = variable.RenderRuntimePlaceholders(rendered)
	if masker != nil {
		rendered = masker.Mask(rendered)
	}
	runes := []rune(rendered)
	if len(runes) <= previewLength {
		return rendered
	}
	return string(runes[:previewLength]) + "..."
}

// topoSort produces a stable job order via Kahn's algorithm over
// DependsOn edges, breaking ties by declared JobOrder so the render is
// deterministic. Jobs left out of the graph by a broken reference (which
// the Dependency phase would already have flagged) are appended in
// declaration order at the end rather than dropped.
func topoSort(p *pipeline.Pipeline) []string {
	indegree := make(map[string]int, len(p.Jobs))
	for id := range p.Jobs {
		indegree[id] = 0
	}
	for _, job := range p.Jobs {
		for _, dep := range job.DependsOn {
			if _, ok := p.Jobs[dep]; ok && dep != job.ID {
				indegree[job.ID]++
			}
		}
	}

	var queue []string
	for _, id := range p.JobOrder {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	emitted := make(map[string]bool, len(p.Jobs))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if emitted[id] {
			continue
		}
		emitted[id] = true
		order = append(order, id)

		for _, candidate := range p.JobOrder {
			job, ok := p.Jobs[candidate]
			if !ok || emitted[candidate] {
				continue
			}
			dependsOnID := false
			for _, dep := range job.DependsOn {
				if dep == id {
					dependsOnID = true
					break
				}
			}
			if !dependsOnID {
				continue
			}
			indegree[candidate]--
			if indegree[candidate] == 0 {
				queue = append(queue, candidate)
			}
		}
	}

	// Any job not emitted (cycle, or depends on a job never emitted due to
	// a broken reference) is appended in declared order rather than lost,
	// since plan.Build may be called for a render even when validation
	// already reported the underlying error.
	for _, id := range p.JobOrder {
		if !emitted[id] {
			order = append(order, id)
		}
	}
	return order
}
