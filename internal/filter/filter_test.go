package filter

import (
	"testing"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

func buildTestJob() *pipeline.Job {
	return &pipeline.Job{
		ID:          "build",
		DisplayName: "Build",
		Steps: []*pipeline.Step{
			{ID: "checkout", DisplayName: "Checkout"},
			{ID: "build", DisplayName: "Build"},
			{ID: "test", DisplayName: "Test"},
		},
	}
}

// TestStepSelectedByName covers spec §8 scenario S4: --step Build --step
// Test selects Build and Test while Checkout is reported unmatched.
func TestStepSelectedByName(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{Names: []string{"Build", "Test"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	checkout := c.Evaluate(Candidate{Step: job.Steps[0], Index: 1, Job: job})
	if checkout.Execute {
		t.Fatalf("expected Checkout to be excluded, got executed: %s", checkout.Reason)
	}
	if checkout.Reason != "did not match any name patterns" {
		t.Fatalf("unexpected reason: %s", checkout.Reason)
	}

	build := c.Evaluate(Candidate{Step: job.Steps[1], Index: 2, Job: job})
	if !build.Execute {
		t.Fatalf("expected Build to execute")
	}

	test := c.Evaluate(Candidate{Step: job.Steps[2], Index: 3, Job: job})
	if !test.Execute {
		t.Fatalf("expected Test to execute")
	}
}

func TestNoInclusionFilterExecutesByDefault(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, s := range job.Steps {
		r := c.Evaluate(Candidate{Step: s, Index: i + 1, Job: job})
		if !r.Execute {
			t.Fatalf("step %s: expected execution with no filters configured", s.ID)
		}
	}
}

func TestExclusionOverridesInclusion(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{Names: []string{"Build"}, SkipNames: []string{"Build"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := c.Evaluate(Candidate{Step: job.Steps[1], Index: 2, Job: job})
	if r.Execute {
		t.Fatal("expected exclusion to take precedence over inclusion")
	}
}

func TestJobGateBlocksOtherJobs(t *testing.T) {
	job := buildTestJob()
	other := &pipeline.Job{ID: "deploy", DisplayName: "Deploy", Steps: job.Steps}
	c, err := Build(Options{JobNames: []string{"build"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := c.Evaluate(Candidate{Step: other.Steps[0], Index: 1, Job: other})
	if r.Execute {
		t.Fatal("expected job gate to exclude steps from unselected jobs")
	}
	r2 := c.Evaluate(Candidate{Step: job.Steps[0], Index: 1, Job: job})
	if !r2.Execute {
		t.Fatal("expected job gate to allow steps from selected job")
	}
}

func TestIndexFilterParsesRangesAndLists(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{Indices: "1,3"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !c.Evaluate(Candidate{Step: job.Steps[0], Index: 1, Job: job}).Execute {
		t.Fatal("expected index 1 to execute")
	}
	if c.Evaluate(Candidate{Step: job.Steps[1], Index: 2, Job: job}).Execute {
		t.Fatal("expected index 2 to be excluded")
	}
	if !c.Evaluate(Candidate{Step: job.Steps[2], Index: 3, Job: job}).Execute {
		t.Fatal("expected index 3 to execute")
	}

	ranged, err := Build(Options{Indices: "2-3"})
	if err != nil {
		t.Fatalf("Build range: %v", err)
	}
	if ranged.Evaluate(Candidate{Step: job.Steps[0], Index: 1, Job: job}).Execute {
		t.Fatal("expected index 1 outside range 2-3 to be excluded")
	}
	if !ranged.Evaluate(Candidate{Step: job.Steps[1], Index: 2, Job: job}).Execute {
		t.Fatal("expected index 2 inside range 2-3 to execute")
	}
	if !ranged.Evaluate(Candidate{Step: job.Steps[2], Index: 3, Job: job}).Execute {
		t.Fatal("expected index 3 inside range 2-3 to execute")
	}
}

func TestNamedRangeFilter(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{Ranges: []RangeSpec{{Named: true, NamedStart: "Build", NamedEnd: "Test"}}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Evaluate(Candidate{Step: job.Steps[0], Index: 1, Job: job}).Execute {
		t.Fatal("expected Checkout outside named range to be excluded")
	}
	if !c.Evaluate(Candidate{Step: job.Steps[1], Index: 2, Job: job}).Execute {
		t.Fatal("expected Build inside named range to execute")
	}
	if !c.Evaluate(Candidate{Step: job.Steps[2], Index: 3, Job: job}).Execute {
		t.Fatal("expected Test inside named range to execute")
	}
}

func TestValidateWarnsOnZeroMatchNamePattern(t *testing.T) {
	job := buildTestJob()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs:     map[string]*pipeline.Job{"build": job},
	}
	issues, err := Validate(p, Options{Names: []string{"Deploy"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(issues) != 1 || !issues[0].Warning {
		t.Fatalf("expected one warning issue, got %+v", issues)
	}
}

func TestValidateErrorsOnUnresolvedNamedRange(t *testing.T) {
	job := buildTestJob()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs:     map[string]*pipeline.Job{"build": job},
	}
	issues, err := Validate(p, Options{Ranges: []RangeSpec{{Named: true, NamedStart: "Build", NamedEnd: "Deploy"}}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	found := false
	for _, iss := range issues {
		if !iss.Warning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error-level issue for unresolved range endpoint, got %+v", issues)
	}
}

// TestFilterCompositionProperty checks spec §8 property 4:
// jobGate(step) && !exclusion(step) && (noInclusions || someInclusion(step)).
func TestFilterCompositionProperty(t *testing.T) {
	job := buildTestJob()
	c, err := Build(Options{JobNames: []string{"build"}, SkipNames: []string{"Checkout"}, Names: []string{"Build"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cases := []struct {
		idx      int
		expected bool
	}{
		{0, false}, // Checkout: excluded
		{1, true},  // Build: passes job gate, not excluded, matches inclusion
		{2, false}, // Test: passes job gate, not excluded, but no inclusion match
	}
	for _, tc := range cases {
		r := c.Evaluate(Candidate{Step: job.Steps[tc.idx], Index: tc.idx + 1, Job: job})
		if r.Execute != tc.expected {
			t.Fatalf("step %s: Execute = %v, want %v (%s)", job.Steps[tc.idx].ID, r.Execute, tc.expected, r.Reason)
		}
	}
}
