// Package pipeline defines the provider-agnostic intermediate representation
// the parser port produces and every other component consumes (spec §3).
// Pipeline, Job and Step are read-only once a parser hands them to the
// engine; nothing in this package mutates them after construction.
package pipeline

import "time"

// Provider identifies which hosted CI system a Pipeline was authored for.
type Provider int

// Providers named in spec §3.
const (
	ProviderUnknown Provider = iota
	ProviderGitHub
	ProviderAzureDevOps
	ProviderGitLab
)

func (p Provider) String() string {
	switch p {
	case ProviderGitHub:
		return "github"
	case ProviderAzureDevOps:
		return "azure-devops"
	case ProviderGitLab:
		return "gitlab"
	default:
		return "unknown"
	}
}

// StepKind is the closed enum of step kinds from spec §3.
type StepKind int

// Step kinds. Bash and Script are deliberately modeled as the same kind
// with a shell hint rather than distinct kinds - see DESIGN.md's note on
// the spec's open question about StepType.Bash vs StepType.Script.
const (
	StepUnknown StepKind = iota
	StepCheckout
	StepScript
	StepDocker
	StepNpm
	StepDotnet
	StepPython
	StepMaven
	StepGradle
	StepPowerShell
	StepFileOperation
	StepUploadArtifact
	StepDownloadArtifact
)

func (k StepKind) String() string {
	switch k {
	case StepCheckout:
		return "checkout"
	case StepScript:
		return "script"
	case StepDocker:
		return "docker"
	case StepNpm:
		return "npm"
	case StepDotnet:
		return "dotnet"
	case StepPython:
		return "python"
	case StepMaven:
		return "maven"
	case StepGradle:
		return "gradle"
	case StepPowerShell:
		return "powershell"
	case StepFileOperation:
		return "file-operation"
	case StepUploadArtifact:
		return "upload-artifact"
	case StepDownloadArtifact:
		return "download-artifact"
	default:
		return "unknown"
	}
}

// ConditionKind tags the Condition union.
type ConditionKind int

// Condition variants from spec §3.
const (
	ConditionAlways ConditionKind = iota
	ConditionSuccess
	ConditionFailure
	ConditionExpression
)

// Condition gates whether a job or step runs, based on the aggregate
// outcome of what ran before it.
type Condition struct {
	Kind ConditionKind
	// Expr carries the text expression when Kind == ConditionExpression.
	Expr string
}

// DefaultCondition is the implicit condition when a job or step has none:
// run only if nothing has failed yet.
var DefaultCondition = Condition{Kind: ConditionSuccess}

// ArtifactDescriptor names an artifact a step uploads or downloads.
type ArtifactDescriptor struct {
	Name string
	Path string
}

// Step is the atomic unit of execution (spec §3).
type Step struct {
	ID               string
	DisplayName      string
	Kind             StepKind
	Script           string
	Shell            string
	Inputs           map[string]string
	Env              map[string]string
	ContinueOnError  bool
	Condition        *Condition
	WorkingDirectory string
	Artifact         *ArtifactDescriptor
	Needs            []string
}

// EffectiveShell returns the step's shell, defaulting to bash per spec §3.
func (s *Step) EffectiveShell() string {
	if s.Shell == "" {
		return "bash"
	}
	return s.Shell
}

// Job is a set of steps executed in a single runner environment (spec §3).
type Job struct {
	ID          string
	DisplayName string
	RunnerLabel string
	Steps       []*Step
	Env         map[string]string
	DependsOn   []string
	Condition   *Condition
	Timeout     *time.Duration
}

// Pipeline is the top-level, immutable artifact a parser produces.
type Pipeline struct {
	Name      string
	Provider  Provider
	JobOrder  []string // insertion order of Jobs keys, for stable iteration
	Jobs      map[string]*Job
	Variables map[string]string
}

// OrderedJobs returns jobs in the pipeline's declared (insertion) order.
func (p *Pipeline) OrderedJobs() []*Job {
	jobs := make([]*Job, 0, len(p.JobOrder))
	for _, id := range p.JobOrder {
		if j, ok := p.Jobs[id]; ok {
			jobs = append(jobs, j)
		}
	}
	return jobs
}
