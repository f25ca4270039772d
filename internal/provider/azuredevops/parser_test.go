package azuredevops

import (
	"testing"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

const sampleStaged = `
name: CI
trigger:
  - main
pool:
  vmImage: ubuntu-latest
variables:
  GLOBAL_VAR: hello
stages:
  - stage: build
    jobs:
      - job: compile
        steps:
          - checkout: self
          - script: npm ci
            displayName: Install
          - bash: npm test
            displayName: Test
            continueOnError: true
  - stage: deploy
    dependsOn: build
    jobs:
      - job: publish
        condition: succeeded()
        steps:
          - publish: dist/
            artifact: dist
`

func TestParseStagedPipeline(t *testing.T) {
	p := New()
	pl, err := p.Parse([]byte(sampleStaged))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pl.Provider != pipeline.ProviderAzureDevOps {
		t.Errorf("Provider = %v, want ProviderAzureDevOps", pl.Provider)
	}
	if pl.Variables["GLOBAL_VAR"] != "hello" {
		t.Errorf("Variables[GLOBAL_VAR] = %q, want hello", pl.Variables["GLOBAL_VAR"])
	}
	if len(pl.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(pl.Jobs))
	}

	compile := pl.Jobs["build.compile"]
	if compile == nil {
		t.Fatal("missing job build.compile")
	}
	if compile.RunnerLabel != "ubuntu-latest" {
		t.Errorf("compile.RunnerLabel = %q, want ubuntu-latest", compile.RunnerLabel)
	}
	if len(compile.Steps) != 3 {
		t.Fatalf("len(compile.Steps) = %d, want 3", len(compile.Steps))
	}
	if compile.Steps[0].Kind != pipeline.StepCheckout {
		t.Errorf("compile.Steps[0].Kind = %v, want StepCheckout", compile.Steps[0].Kind)
	}
	if compile.Steps[2].Kind != pipeline.StepScript || compile.Steps[2].Shell != "bash" {
		t.Errorf("compile.Steps[2] = %+v, want bash Script", compile.Steps[2])
	}
	if !compile.Steps[2].ContinueOnError {
		t.Error("compile.Steps[2].ContinueOnError = false, want true")
	}

	publish := pl.Jobs["deploy.publish"]
	if publish == nil {
		t.Fatal("missing job deploy.publish")
	}
	if len(publish.DependsOn) != 1 || publish.DependsOn[0] != "build.compile" {
		t.Errorf("publish.DependsOn = %v, want [build.compile]", publish.DependsOn)
	}
	if publish.Condition == nil || publish.Condition.Kind != pipeline.ConditionSuccess {
		t.Errorf("publish.Condition = %+v, want ConditionSuccess", publish.Condition)
	}
	if len(publish.Steps) != 1 || publish.Steps[0].Kind != pipeline.StepUploadArtifact {
		t.Fatalf("publish.Steps = %+v, want one StepUploadArtifact", publish.Steps)
	}
	if publish.Steps[0].Artifact == nil || publish.Steps[0].Artifact.Name != "dist" {
		t.Errorf("publish.Steps[0].Artifact = %+v, want Name=dist", publish.Steps[0].Artifact)
	}
}

const sampleFlat = `
name: flat
pool:
  vmImage: windows-latest
jobs:
  - job: a
    steps:
      - pwsh: Write-Host hi
  - job: b
    dependsOn: a
    steps:
      - task: DotNetCoreCLI@2
        inputs:
          command: build
`

func TestParseFlatJobs(t *testing.T) {
	p := New()
	pl, err := p.Parse([]byte(sampleFlat))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(pl.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(pl.Jobs))
	}
	a := pl.Jobs["a"]
	if a == nil || a.RunnerLabel != "windows-latest" {
		t.Fatalf("job a = %+v, want RunnerLabel=windows-latest", a)
	}
	if a.Steps[0].Kind != pipeline.StepPowerShell || a.Steps[0].Shell != "pwsh" {
		t.Errorf("a.Steps[0] = %+v, want pwsh PowerShell step", a.Steps[0])
	}
	b := pl.Jobs["b"]
	if b == nil || len(b.DependsOn) != 1 || b.DependsOn[0] != "a" {
		t.Fatalf("job b = %+v, want DependsOn=[a]", b)
	}
	if b.Steps[0].Kind != pipeline.StepDotnet {
		t.Errorf("b.Steps[0].Kind = %v, want StepDotnet", b.Steps[0].Kind)
	}
}

func TestCanParse(t *testing.T) {
	p := New()
	cases := map[string]bool{
		"azure-pipelines.yml":          true,
		"azure-pipelines.yaml":         true,
		".azure-pipelines/build.yml":   true,
		"deploy.pipeline.yaml":         true,
		".github/workflows/ci.yml":     false,
		"random.yml":                   false,
	}
	for path, want := range cases {
		if got := p.CanParse(path); got != want {
			t.Errorf("CanParse(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestParseRejectsEmptyPipeline(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte("name: empty\n"))
	if err == nil {
		t.Fatal("expected error for pipeline with no stages, jobs, or steps")
	}
}
