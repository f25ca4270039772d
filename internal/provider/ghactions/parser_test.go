package ghactions

import (
	"testing"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

const sampleWorkflow = `
name: CI
on: [push]
env:
  GLOBAL_VAR: hello
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Install
        run: npm ci
      - name: Test
        run: npm test
        continue-on-error: true
  deploy:
    runs-on: ubuntu-latest
    needs: [build]
    if: ${{ success() }}
    steps:
      - uses: actions/upload-artifact@v4
        with:
          name: dist
          path: dist/
`

func TestParseBasicWorkflow(t *testing.T) {
	p := New()
	pl, err := p.Parse([]byte(sampleWorkflow))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pl.Name != "CI" {
		t.Errorf("Name = %q, want CI", pl.Name)
	}
	if pl.Provider != pipeline.ProviderGitHub {
		t.Errorf("Provider = %v, want ProviderGitHub", pl.Provider)
	}
	if pl.Variables["GLOBAL_VAR"] != "hello" {
		t.Errorf("Variables[GLOBAL_VAR] = %q, want hello", pl.Variables["GLOBAL_VAR"])
	}
	if len(pl.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(pl.Jobs))
	}

	build := pl.Jobs["build"]
	if build == nil {
		t.Fatal("missing job build")
	}
	if build.RunnerLabel != "ubuntu-latest" {
		t.Errorf("build.RunnerLabel = %q, want ubuntu-latest", build.RunnerLabel)
	}
	if len(build.Steps) != 3 {
		t.Fatalf("len(build.Steps) = %d, want 3", len(build.Steps))
	}
	if build.Steps[0].Kind != pipeline.StepCheckout {
		t.Errorf("build.Steps[0].Kind = %v, want StepCheckout", build.Steps[0].Kind)
	}
	if build.Steps[1].Kind != pipeline.StepScript || build.Steps[1].Script != "npm ci" {
		t.Errorf("build.Steps[1] = %+v, want Script=npm ci", build.Steps[1])
	}
	if !build.Steps[2].ContinueOnError {
		t.Error("build.Steps[2].ContinueOnError = false, want true")
	}

	deploy := pl.Jobs["deploy"]
	if deploy == nil {
		t.Fatal("missing job deploy")
	}
	if len(deploy.DependsOn) != 1 || deploy.DependsOn[0] != "build" {
		t.Errorf("deploy.DependsOn = %v, want [build]", deploy.DependsOn)
	}
	if deploy.Condition == nil || deploy.Condition.Kind != pipeline.ConditionSuccess {
		t.Errorf("deploy.Condition = %+v, want ConditionSuccess", deploy.Condition)
	}
	if len(deploy.Steps) != 1 || deploy.Steps[0].Kind != pipeline.StepUploadArtifact {
		t.Fatalf("deploy.Steps = %+v, want one StepUploadArtifact", deploy.Steps)
	}
	if deploy.Steps[0].Artifact == nil || deploy.Steps[0].Artifact.Name != "dist" {
		t.Errorf("deploy.Steps[0].Artifact = %+v, want Name=dist", deploy.Steps[0].Artifact)
	}
}

func TestParseRejectsEmptyJobs(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte("name: empty\non: [push]\njobs: {}\n"))
	if err == nil {
		t.Fatal("expected error for workflow with no jobs")
	}
}

func TestParseRejectsNullBytes(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte("name: bad\x00\n"))
	if err == nil {
		t.Fatal("expected error for workflow containing a null byte")
	}
}

func TestCanParse(t *testing.T) {
	p := New()
	cases := map[string]bool{
		".github/workflows/ci.yml":        true,
		".github/workflows/ci.yaml":       true,
		"azure-pipelines.yml":             false,
		".github/workflows/ci.yml.bak":    false,
		"nested/.github/workflows/x.yaml": true,
	}
	for path, want := range cases {
		if got := p.CanParse(path); got != want {
			t.Errorf("CanParse(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNeedsAcceptsStringOrList(t *testing.T) {
	const wf = `
name: needs-shapes
on: [push]
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: echo a
  b:
    runs-on: ubuntu-latest
    needs: a
    steps:
      - run: echo b
  c:
    runs-on: ubuntu-latest
    needs: [a, b]
    steps:
      - run: echo c
`
	p := New()
	pl, err := p.Parse([]byte(wf))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := pl.Jobs["b"].DependsOn; len(got) != 1 || got[0] != "a" {
		t.Errorf("b.DependsOn = %v, want [a]", got)
	}
	if got := pl.Jobs["c"].DependsOn; len(got) != 2 {
		t.Errorf("c.DependsOn = %v, want 2 entries", got)
	}
}
