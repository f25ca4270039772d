// Package ghactions implements the parser port (spec §6.5) for GitHub
// Actions workflow YAML, turning it into the provider-agnostic Pipeline
// IR from spec §3. Grounded on the teacher's own workflow YAML shape at
// packages/core/workflow/types.go, narrowed to the fields this engine's
// IR actually carries.
package ghactions

// workflowFile mirrors the subset of GitHub Actions workflow YAML this
// engine understands. Fields the IR has no use for (triggers, defaults,
// concurrency, permissions) are intentionally left as `any` or dropped,
// the same trimming the teacher's own Workflow struct already does for
// its TUI-facing needs.
type workflowFile struct {
	Name string            `yaml:"name,omitempty"`
	On   any               `yaml:"on,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
	Jobs map[string]*job   `yaml:"jobs"`
}

type job struct {
	Name           string            `yaml:"name,omitempty"`
	RunsOn         any               `yaml:"runs-on"`
	Steps          []*step           `yaml:"steps"`
	Env            map[string]string `yaml:"env,omitempty"`
	If             string            `yaml:"if,omitempty"`
	Needs          any               `yaml:"needs,omitempty"`
	TimeoutMinutes any               `yaml:"timeout-minutes,omitempty"`
}

type step struct {
	ID               string            `yaml:"id,omitempty"`
	Name             string            `yaml:"name,omitempty"`
	Uses             string            `yaml:"uses,omitempty"`
	Run              string            `yaml:"run,omitempty"`
	With             map[string]any    `yaml:"with,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	If               string            `yaml:"if,omitempty"`
	ContinueOnError  bool              `yaml:"continue-on-error,omitempty"`
	WorkingDirectory string            `yaml:"working-directory,omitempty"`
	Shell            string            `yaml:"shell,omitempty"`
	Needs            any               `yaml:"needs,omitempty"`
}
