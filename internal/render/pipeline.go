package render

import (
	"encoding/json"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// jsonPipelineStep is one step in the `list` / dry-run JSON shape.
type jsonPipelineStep struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Script string            `json:"script,omitempty"`
	With   map[string]string `json:"with,omitempty"`
}

type jsonPipelineJob struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	RunsOn    string             `json:"runsOn"`
	StepCount int                `json:"stepCount"`
	DependsOn []string           `json:"dependsOn,omitempty"`
	Condition string             `json:"condition,omitempty"`
	Steps     []jsonPipelineStep `json:"steps,omitempty"`
}

// jsonPipeline is the stable `{ name, provider, jobs: [...] }` shape from
// spec §6.5, shared by `list` and the non-error part of dry-run output.
type jsonPipeline struct {
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Jobs     []jsonPipelineJob `json:"jobs"`
}

// PipelineJSON marshals p into the stable `list`/dry-run pipeline shape.
// includeSteps controls whether each job's step detail is emitted, since
// `list` (summary) and `run --dry-run` (detail) both use this shape.
func PipelineJSON(p *pipeline.Pipeline, includeSteps bool) ([]byte, error) {
	out := jsonPipeline{Name: p.Name, Provider: p.Provider.String()}
	for _, job := range p.OrderedJobs() {
		jj := jsonPipelineJob{
			ID:        job.ID,
			Name:      job.DisplayName,
			RunsOn:    job.RunnerLabel,
			StepCount: len(job.Steps),
			DependsOn: job.DependsOn,
		}
		if job.Condition != nil {
			jj.Condition = conditionString(*job.Condition)
		}
		if includeSteps {
			for _, s := range job.Steps {
				name := s.DisplayName
				if name == "" {
					name = s.ID
				}
				step := jsonPipelineStep{Name: name, Type: string(s.Kind), Script: s.Script}
				if len(s.Inputs) > 0 {
					step.With = s.Inputs
				}
				jj.Steps = append(jj.Steps, step)
			}
		}
		out.Jobs = append(out.Jobs, jj)
	}
	return json.MarshalIndent(out, "", "  ")
}

func conditionString(c pipeline.Condition) string {
	switch c.Kind {
	case pipeline.ConditionExpression:
		return c.Expr
	case pipeline.ConditionAlways:
		return "always"
	case pipeline.ConditionFailure:
		return "failure"
	default:
		return "success"
	}
}
