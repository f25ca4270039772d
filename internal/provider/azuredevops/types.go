// Package azuredevops implements the parser port (spec §6.5) for Azure
// Pipelines YAML, turning it into the same provider-agnostic Pipeline IR
// that internal/provider/ghactions produces for GitHub Actions. Grounded
// on the same shape the pack's own converter.go (other_examples) derives
// for Azure Pipelines, and on the teacher's workflow-YAML parsing idiom
// (packages/core/workflow/parser.go) for the file-safety checks.
package azuredevops

// pipelineFile mirrors the subset of azure-pipelines.yml this engine
// understands: either a flat Jobs list or a Stages-of-Jobs hierarchy.
// Azure Pipelines allows both shapes at the top level; a pipeline with no
// explicit stages is treated as a single implicit stage.
type pipelineFile struct {
	Name      string            `yaml:"name,omitempty"`
	Trigger   any               `yaml:"trigger,omitempty"`
	Pool      *pool             `yaml:"pool,omitempty"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Stages    []*stage          `yaml:"stages,omitempty"`
	Jobs      []*job            `yaml:"jobs,omitempty"`
	Steps     []*step           `yaml:"steps,omitempty"`
}

type pool struct {
	VMImage string `yaml:"vmImage,omitempty"`
	Name    string `yaml:"name,omitempty"`
}

type stage struct {
	Stage     string   `yaml:"stage"`
	DependsOn any      `yaml:"dependsOn,omitempty"`
	Condition string   `yaml:"condition,omitempty"`
	Pool      *pool    `yaml:"pool,omitempty"`
	Jobs      []*job   `yaml:"jobs,omitempty"`
}

type job struct {
	Job             string            `yaml:"job"`
	DisplayName     string            `yaml:"displayName,omitempty"`
	DependsOn       any               `yaml:"dependsOn,omitempty"`
	Condition       string            `yaml:"condition,omitempty"`
	Pool            *pool             `yaml:"pool,omitempty"`
	TimeoutInMinutes any              `yaml:"timeoutInMinutes,omitempty"`
	Variables       map[string]string `yaml:"variables,omitempty"`
	Steps           []*step           `yaml:"steps,omitempty"`
}

// step mirrors the handful of built-in Azure Pipelines task shorthands
// this engine recognizes (script/bash/pwsh/powershell/checkout/publish/
// download), collapsed down to our Script/Checkout/Upload/Download/
// PowerShell step kinds, plus the generic `task:` form: Npm@,
// DotNetCoreCLI@/UseDotNet@, Maven@, Gradle@, UsePythonVersion@ and
// CopyFiles@/DeleteFiles@ tasks map to their own step kinds, any other
// task to StepUnknown.
type step struct {
	DisplayName     string            `yaml:"displayName,omitempty"`
	Script          string            `yaml:"script,omitempty"`
	Bash            string            `yaml:"bash,omitempty"`
	Pwsh            string            `yaml:"pwsh,omitempty"`
	PowerShell      string            `yaml:"powershell,omitempty"`
	Checkout        string            `yaml:"checkout,omitempty"`
	Task            string            `yaml:"task,omitempty"`
	Publish         string            `yaml:"publish,omitempty"`
	Download        string            `yaml:"download,omitempty"`
	Artifact        string            `yaml:"artifact,omitempty"`
	Inputs          map[string]any    `yaml:"inputs,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	Condition       string            `yaml:"condition,omitempty"`
	ContinueOnError bool              `yaml:"continueOnError,omitempty"`
	WorkingDirectory string           `yaml:"workingDirectory,omitempty"`
}
