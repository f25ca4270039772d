package ghactions

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

// maxWorkflowSizeBytes mirrors the teacher's own defense-in-depth size
// cap on workflow files (packages/core/workflow/parser.go).
const maxWorkflowSizeBytes = 1 * 1024 * 1024

// Parser implements ports.Parser for GitHub Actions workflow YAML.
type Parser struct{}

// New returns a ready-to-use Parser.
func New() *Parser { return &Parser{} }

// CanParse reports whether path looks like a GitHub Actions workflow per
// spec §6.2's auto-detection pattern `.github/workflows/*.{yml,yaml}`.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	ext := filepath.Ext(clean)
	if ext != ".yml" && ext != ".yaml" {
		return false
	}
	return strings.Contains(clean, ".github/workflows/")
}

// ParseFile reads path and parses it.
func (p *Parser) ParseFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the CLI's own auto-detection/--file flag
	if err != nil {
		return nil, errtax.Wrap(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentFile, Number: 1}, err, fmt.Sprintf("reading workflow file %q", path))
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

// Parse turns raw GitHub Actions workflow YAML into the Pipeline IR.
func (p *Parser) Parse(text []byte) (*pipeline.Pipeline, error) {
	if err := validateContent(text); err != nil {
		return nil, err
	}

	var wf workflowFile
	if err := yaml.Unmarshal(text, &wf); err != nil {
		return nil, errtax.Wrap(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 1}, err, "invalid YAML syntax in GitHub Actions workflow")
	}
	if len(wf.Jobs) == 0 {
		return nil, errtax.New(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 2}, "workflow defines no jobs")
	}

	pl := &pipeline.Pipeline{
		Name:      wf.Name,
		Provider:  pipeline.ProviderGitHub,
		Jobs:      make(map[string]*pipeline.Job, len(wf.Jobs)),
		Variables: wf.Env,
	}
	if pl.Variables == nil {
		pl.Variables = make(map[string]string)
	}

	// yaml job ordering: goccy/go-yaml decodes into a Go map, which has no
	// stable order; sort job ids for deterministic JobOrder the same way
	// the dry-run validator's topo sort breaks ties by insertion order.
	ids := make([]string, 0, len(wf.Jobs))
	for id := range wf.Jobs {
		ids = append(ids, id)
	}
	sortStrings(ids)

	for _, id := range ids {
		j := wf.Jobs[id]
		if j == nil {
			continue
		}
		converted, err := convertJob(id, j)
		if err != nil {
			return nil, err
		}
		pl.Jobs[id] = converted
		pl.JobOrder = append(pl.JobOrder, id)
	}

	return pl, nil
}

func validateContent(data []byte) error {
	if len(data) > maxWorkflowSizeBytes {
		return errtax.Newf(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 3}, "workflow file exceeds maximum size of %d bytes", maxWorkflowSizeBytes)
	}
	if bytes.Contains(data, []byte{0x00}) {
		return errtax.New(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 5}, "workflow file contains null bytes")
	}
	return nil
}

func convertJob(id string, j *job) (*pipeline.Job, error) {
	out := &pipeline.Job{
		ID:          id,
		DisplayName: j.Name,
		RunnerLabel: stringify(j.RunsOn),
		Env:         j.Env,
		DependsOn:   toStringSlice(j.Needs),
	}
	if out.Env == nil {
		out.Env = make(map[string]string)
	}
	if cond := parseCondition(j.If); cond != nil {
		out.Condition = cond
	}
	if d, ok := toDuration(j.TimeoutMinutes); ok {
		out.Timeout = &d
	}

	for i, s := range j.Steps {
		converted, err := convertStep(s, i)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		out.Steps = append(out.Steps, converted)
	}
	return out, nil
}

func convertStep(s *step, index int) (*pipeline.Step, error) {
	out := &pipeline.Step{
		ID:               s.ID,
		DisplayName:      s.Name,
		Env:              s.Env,
		ContinueOnError:  s.ContinueOnError,
		WorkingDirectory: s.WorkingDirectory,
		Shell:            s.Shell,
		Needs:            toStringSlice(s.Needs),
		Inputs:           stringifyMap(s.With),
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
	if cond := parseCondition(s.If); cond != nil {
		out.Condition = cond
	}

	switch {
	case s.Run != "":
		out.Kind = pipeline.StepScript
		out.Script = s.Run
	case strings.Contains(s.Uses, "actions/checkout"):
		out.Kind = pipeline.StepCheckout
	case strings.Contains(s.Uses, "upload-artifact"):
		out.Kind = pipeline.StepUploadArtifact
		out.Artifact = artifactFromInputs(out.Inputs)
	case strings.Contains(s.Uses, "download-artifact"):
		out.Kind = pipeline.StepDownloadArtifact
		out.Artifact = artifactFromInputs(out.Inputs)
	case strings.HasPrefix(s.Uses, "docker://"):
		out.Kind = pipeline.StepDocker
		out.Inputs["image"] = strings.TrimPrefix(s.Uses, "docker://")
	case s.Uses != "":
		out.Kind = pipeline.StepUnknown
	default:
		out.Kind = pipeline.StepUnknown
	}
	return out, nil
}

func artifactFromInputs(inputs map[string]string) *pipeline.ArtifactDescriptor {
	name := inputs["name"]
	path := inputs["path"]
	if name == "" && path == "" {
		return nil
	}
	if name == "" {
		name = path
	}
	return &pipeline.ArtifactDescriptor{Name: name, Path: path}
}

// parseCondition turns a GitHub Actions `if:` expression into a spec §3
// Condition. The handful of bare function-call forms map to the fixed
// variants; anything else is carried as an opaque Expression (spec §4.2
// treats `${{ }}` sites as syntax-checked only, not evaluated here).
func parseCondition(expr string) *pipeline.Condition {
	trimmed := strings.TrimSpace(expr)
	trimmed = strings.TrimPrefix(trimmed, "${{")
	trimmed = strings.TrimSuffix(trimmed, "}}")
	trimmed = strings.TrimSpace(trimmed)
	switch trimmed {
	case "":
		return nil
	case "always()":
		return &pipeline.Condition{Kind: pipeline.ConditionAlways}
	case "success()":
		return &pipeline.Condition{Kind: pipeline.ConditionSuccess}
	case "failure()":
		return &pipeline.Condition{Kind: pipeline.ConditionFailure}
	default:
		return &pipeline.Condition{Kind: pipeline.ConditionExpression, Expr: trimmed}
	}
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

// sortStrings is a tiny insertion sort; avoids importing sort for one
// call site the way this engine's secret.List already does (see
// internal/secret/store.go).
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
