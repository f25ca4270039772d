package azuredevops

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/pipeline"
)

const maxPipelineSizeBytes = 1 * 1024 * 1024

// Parser implements ports.Parser for Azure Pipelines YAML.
type Parser struct{}

// New returns a ready-to-use Parser.
func New() *Parser { return &Parser{} }

// CanParse reports whether path matches one of spec §6.2's Azure DevOps
// auto-detection patterns: `azure-pipelines.{yml,yaml}`,
// `.azure-pipelines/*.{yml,yaml}`, or `*.pipeline.{yml,yaml}`.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	base := filepath.Base(clean)
	ext := filepath.Ext(base)
	if ext != ".yml" && ext != ".yaml" {
		return false
	}
	if base == "azure-pipelines.yml" || base == "azure-pipelines.yaml" {
		return true
	}
	if strings.Contains(clean, ".azure-pipelines/") {
		return true
	}
	withoutExt := strings.TrimSuffix(base, ext)
	return strings.HasSuffix(withoutExt, ".pipeline")
}

// ParseFile reads path and parses it.
func (p *Parser) ParseFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the CLI's own auto-detection/--file flag
	if err != nil {
		return nil, errtax.Wrap(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentFile, Number: 1}, err, fmt.Sprintf("reading pipeline file %q", path))
	}
	pl, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	if pl.Name == "" {
		pl.Name = filepath.Base(path)
	}
	return pl, nil
}

// Parse turns raw Azure Pipelines YAML into the Pipeline IR.
func (p *Parser) Parse(text []byte) (*pipeline.Pipeline, error) {
	if err := validateContent(text); err != nil {
		return nil, err
	}

	var pf pipelineFile
	if err := yaml.Unmarshal(text, &pf); err != nil {
		return nil, errtax.Wrap(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 1}, err, "invalid YAML syntax in Azure Pipelines file")
	}

	pl := &pipeline.Pipeline{
		Name:      pf.Name,
		Provider:  pipeline.ProviderAzureDevOps,
		Jobs:      make(map[string]*pipeline.Job),
		Variables: pf.Variables,
	}
	if pl.Variables == nil {
		pl.Variables = make(map[string]string)
	}

	defaultImage := ""
	if pf.Pool != nil {
		defaultImage = poolLabel(pf.Pool)
	}

	switch {
	case len(pf.Stages) > 0:
		if err := convertStages(pl, pf.Stages, defaultImage); err != nil {
			return nil, err
		}
	case len(pf.Jobs) > 0:
		if err := convertFlatJobs(pl, pf.Jobs, defaultImage); err != nil {
			return nil, err
		}
	case len(pf.Steps) > 0:
		j, err := convertJob(&job{Job: "job1", Steps: pf.Steps}, defaultImage)
		if err != nil {
			return nil, err
		}
		pl.Jobs[j.ID] = j
		pl.JobOrder = append(pl.JobOrder, j.ID)
	default:
		return nil, errtax.New(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 2}, "pipeline defines no stages, jobs, or steps")
	}

	return pl, nil
}

func validateContent(data []byte) error {
	if len(data) > maxPipelineSizeBytes {
		return errtax.Newf(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 3}, "pipeline file exceeds maximum size of %d bytes", maxPipelineSizeBytes)
	}
	if bytes.Contains(data, []byte{0x00}) {
		return errtax.New(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 5}, "pipeline file contains null bytes")
	}
	return nil
}

// convertStages flattens Azure Pipelines' stages-of-jobs hierarchy into the
// IR's flat job graph. A stage with no explicit dependsOn defaults to
// depending on the immediately preceding stage, matching Azure's own
// implicit sequential-stage ordering. A job within a stage that declares
// no dependsOn of its own inherits the stage's cross-stage dependencies,
// expressed as "wait for every job in the depended-upon stage."
func convertStages(pl *pipeline.Pipeline, stages []*stage, defaultImage string) error {
	stageJobs := make(map[string][]string, len(stages))
	var prevStageName string

	for idx, st := range stages {
		name := st.Stage
		if name == "" {
			name = fmt.Sprintf("stage%d", idx+1)
		}
		deps := toStringSlice(st.DependsOn)
		if deps == nil && idx > 0 {
			deps = []string{prevStageName}
		}

		image := defaultImage
		if st.Pool != nil {
			image = poolLabel(st.Pool)
		}

		var crossStageDeps []string
		for _, dep := range deps {
			crossStageDeps = append(crossStageDeps, stageJobs[dep]...)
		}

		var ids []string
		for _, j := range st.Jobs {
			id := name + "." + jobName(j)
			converted, err := convertJob(j, image)
			if err != nil {
				return fmt.Errorf("stage %q: %w", name, err)
			}
			converted.ID = id
			if len(converted.DependsOn) == 0 {
				converted.DependsOn = crossStageDeps
			} else {
				prefixed := make([]string, len(converted.DependsOn))
				for i, d := range converted.DependsOn {
					prefixed[i] = name + "." + d
				}
				converted.DependsOn = prefixed
			}
			pl.Jobs[id] = converted
			pl.JobOrder = append(pl.JobOrder, id)
			ids = append(ids, id)
		}
		stageJobs[name] = ids
		prevStageName = name
	}
	return nil
}

func convertFlatJobs(pl *pipeline.Pipeline, jobs []*job, defaultImage string) error {
	for _, j := range jobs {
		converted, err := convertJob(j, defaultImage)
		if err != nil {
			return err
		}
		pl.Jobs[converted.ID] = converted
		pl.JobOrder = append(pl.JobOrder, converted.ID)
	}
	return nil
}

func jobName(j *job) string {
	if j.Job != "" {
		return j.Job
	}
	return "job"
}

func convertJob(j *job, defaultImage string) (*pipeline.Job, error) {
	image := defaultImage
	if j.Pool != nil {
		image = poolLabel(j.Pool)
	}
	out := &pipeline.Job{
		ID:          jobName(j),
		DisplayName: j.DisplayName,
		RunnerLabel: image,
		Env:         j.Variables,
		DependsOn:   toStringSlice(j.DependsOn),
	}
	if out.Env == nil {
		out.Env = make(map[string]string)
	}
	if cond := parseCondition(j.Condition); cond != nil {
		out.Condition = cond
	}
	if d, ok := toDuration(j.TimeoutInMinutes); ok {
		out.Timeout = &d
	}

	for i, s := range j.Steps {
		converted, err := convertStep(s, i)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", out.ID, err)
		}
		out.Steps = append(out.Steps, converted)
	}
	return out, nil
}

func convertStep(s *step, index int) (*pipeline.Step, error) {
	out := &pipeline.Step{
		DisplayName:      s.DisplayName,
		Env:              s.Env,
		ContinueOnError:  s.ContinueOnError,
		WorkingDirectory: s.WorkingDirectory,
		Inputs:           stringifyMap(s.Inputs),
	}
	if out.Env == nil {
		out.Env = make(map[string]string)
	}
	if out.Inputs == nil {
		out.Inputs = make(map[string]string)
	}
	if out.DisplayName == "" {
		out.DisplayName = fmt.Sprintf("step %d", index+1)
	}
	if cond := parseCondition(s.Condition); cond != nil {
		out.Condition = cond
	}

	switch {
	case s.Bash != "":
		out.Kind = pipeline.StepScript
		out.Shell = "bash"
		out.Script = s.Bash
	case s.Pwsh != "":
		out.Kind = pipeline.StepPowerShell
		out.Shell = "pwsh"
		out.Script = s.Pwsh
	case s.PowerShell != "":
		out.Kind = pipeline.StepPowerShell
		out.Shell = "powershell"
		out.Script = s.PowerShell
	case s.Script != "":
		out.Kind = pipeline.StepScript
		out.Script = s.Script
	case s.Checkout != "":
		out.Kind = pipeline.StepCheckout
	case s.Publish != "":
		out.Kind = pipeline.StepUploadArtifact
		out.Artifact = &pipeline.ArtifactDescriptor{Name: s.Artifact, Path: s.Publish}
		if out.Artifact.Name == "" {
			out.Artifact.Name = s.Publish
		}
	case s.Download != "":
		out.Kind = pipeline.StepDownloadArtifact
		out.Artifact = &pipeline.ArtifactDescriptor{Name: s.Artifact}
	case strings.HasPrefix(s.Task, "Npm@"):
		out.Kind = pipeline.StepNpm
		out.Script = stringify(out.Inputs["command"])
	case strings.HasPrefix(s.Task, "DotNetCoreCLI@") || strings.HasPrefix(s.Task, "UseDotNet@"):
		out.Kind = pipeline.StepDotnet
	case strings.HasPrefix(s.Task, "Maven@"):
		out.Kind = pipeline.StepMaven
	case strings.HasPrefix(s.Task, "Gradle@"):
		out.Kind = pipeline.StepGradle
	case strings.HasPrefix(s.Task, "UsePythonVersion@"):
		out.Kind = pipeline.StepPython
	case strings.HasPrefix(s.Task, "CopyFiles@") || strings.HasPrefix(s.Task, "DeleteFiles@"):
		out.Kind = pipeline.StepFileOperation
	case s.Task != "":
		out.Kind = pipeline.StepUnknown
	default:
		out.Kind = pipeline.StepUnknown
	}
	return out, nil
}

// parseCondition turns an Azure Pipelines `condition:` expression into a
// spec §3 Condition. Azure's built-in functions succeeded()/always()/
// failed() map to the fixed variants; anything else is carried as an
// opaque Expression, matching the treatment in internal/provider/ghactions.
func parseCondition(expr string) *pipeline.Condition {
	trimmed := strings.TrimSpace(expr)
	switch trimmed {
	case "":
		return nil
	case "always()":
		return &pipeline.Condition{Kind: pipeline.ConditionAlways}
	case "succeeded()":
		return &pipeline.Condition{Kind: pipeline.ConditionSuccess}
	case "failed()":
		return &pipeline.Condition{Kind: pipeline.ConditionFailure}
	default:
		return &pipeline.Condition{Kind: pipeline.ConditionExpression, Expr: trimmed}
	}
}

func poolLabel(p *pool) string {
	if p.VMImage != "" {
		return p.VMImage
	}
	return p.Name
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func stringifyMap(m map[string]any) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = stringify(v)
	}
	return out
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, stringify(e))
		}
		return out
	default:
		return nil
	}
}

func toDuration(v any) (time.Duration, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return time.Duration(t) * time.Minute, true
	case float64:
		return time.Duration(t) * time.Minute, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return time.Duration(n) * time.Minute, true
	default:
		return 0, false
	}
}
