package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/plan"
	"github.com/pdk-cli/pdk/internal/validate"
)

var (
	jobHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	stepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dependsStyle   = MutedHint
)

// MutedHint matches the teacher's "hint" italic-muted convention.
var MutedHint = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

// DryRunText renders a DryRunResult as coloured text: errors and
// warnings first (via Error), then the execution plan if one was built.
func DryRunText(result *validate.DryRunResult) string {
	var b strings.Builder
	if len(result.Errors) > 0 {
		b.WriteString(Errors(result.Errors))
		b.WriteString("\n")
	}
	if len(result.Warnings) > 0 {
		b.WriteString(Errors(result.Warnings))
		b.WriteString("\n")
	}
	if result.Plan != nil {
		b.WriteString(Plan(result.Plan))
	}
	return b.String()
}

// Plan renders an ExecutionPlan as an ordered, human-readable listing.
func Plan(p *plan.ExecutionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", jobHeaderStyle.Render(p.PipelineName), p.Provider)
	for i, job := range p.Jobs {
		label := job.DisplayName
		if label == "" {
			label = job.ID
		}
		fmt.Fprintf(&b, "%d. %s", i+1, jobHeaderStyle.Render(label))
		if len(job.DependsOn) > 0 {
			fmt.Fprintf(&b, " %s", dependsStyle.Render("(needs: "+strings.Join(job.DependsOn, ", ")+")"))
		}
		b.WriteString("\n")
		for _, s := range job.Steps {
			name := s.DisplayName
			if name == "" {
				name = s.ID
			}
			line := fmt.Sprintf("   %s %s", Bullet(), stepStyle.Render(name))
			if s.ContainerImage != "" {
				line += " " + dependsStyle.Render("["+s.ContainerImage+"]")
			}
			b.WriteString(line + "\n")
			if s.ScriptPreview != "" {
				fmt.Fprintf(&b, "      %s\n", dependsStyle.Render(s.ScriptPreview))
			}
		}
	}
	return b.String()
}

// Bullet matches internal/tui's bullet glyph without importing tui (render
// stays independent of the bubbletea-only package).
func Bullet() string {
	return MutedHint.Render("·")
}

// jsonError is the wire shape for one errtax.Error in dry-run JSON output
// (spec §6.5).
type jsonError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jsonStep struct {
	Name     string `json:"name"`
	Index    int    `json:"index"`
	WillRun  bool   `json:"willRun"`
}

type jsonPlanJob struct {
	ID    string     `json:"id"`
	Order int        `json:"order"`
	Steps []jsonStep `json:"steps"`
}

type jsonExecutionPlan struct {
	Jobs []jsonPlanJob `json:"jobs"`
}

// dryRunJSON is the stable { valid, errors[], warnings[], executionPlan }
// shape from spec §6.5.
type dryRunJSON struct {
	Valid         bool               `json:"valid"`
	Errors        []jsonError        `json:"errors"`
	Warnings      []jsonError        `json:"warnings"`
	ExecutionPlan *jsonExecutionPlan `json:"executionPlan,omitempty"`
}

// DryRunJSON marshals result into the stable dry-run JSON shape.
func DryRunJSON(result *validate.DryRunResult) ([]byte, error) {
	out := dryRunJSON{
		Valid:    result.OK(),
		Errors:   toJSONErrors(result.Errors),
		Warnings: toJSONErrors(result.Warnings),
	}
	if result.Plan != nil {
		jobs := make([]jsonPlanJob, 0, len(result.Plan.Jobs))
		for i, job := range result.Plan.Jobs {
			steps := make([]jsonStep, 0, len(job.Steps))
			for si, s := range job.Steps {
				name := s.DisplayName
				if name == "" {
					name = s.ID
				}
				steps = append(steps, jsonStep{Name: name, Index: si, WillRun: true})
			}
			jobs = append(jobs, jsonPlanJob{ID: job.ID, Order: i, Steps: steps})
		}
		out.ExecutionPlan = &jsonExecutionPlan{Jobs: jobs}
	}
	return json.MarshalIndent(out, "", "  ")
}

func toJSONErrors(errs []*errtax.Error) []jsonError {
	out := make([]jsonError, 0, len(errs))
	for _, e := range errs {
		out = append(out, jsonError{Code: e.Code.String(), Message: e.Message})
	}
	return out
}
