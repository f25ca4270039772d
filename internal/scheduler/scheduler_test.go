package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pdk-cli/pdk/internal/executorhost"
	"github.com/pdk-cli/pdk/internal/filter"
	"github.com/pdk-cli/pdk/internal/mask"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/variable"
)

func newTestScheduler() *Scheduler {
	reg := NewRegistry()
	for _, e := range executorhost.New() {
		reg.Register(e)
	}
	reg.Register(executorhost.CheckoutExecutor{})
	m := mask.New(false)
	r := variable.New(m)
	return New(reg, nil, m, r)
}

func TestRunSequentialRespectsDependencyOrder(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build", "test"},
		Jobs: map[string]*pipeline.Job{
			"build": {ID: "build", Steps: []*pipeline.Step{{ID: "s1", Kind: pipeline.StepScript, Script: "true"}}},
			"test":  {ID: "test", DependsOn: []string{"build"}, Steps: []*pipeline.Step{{ID: "s1", Kind: pipeline.StepScript, Script: "true"}}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := s.Run(context.Background(), p, []string{"build", "test"}, rc, Options{Runner: RunnerHost})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected overall success, got %+v", result)
	}
	if len(result.Jobs) != 2 || result.Jobs[0].ID != "build" || result.Jobs[1].ID != "test" {
		t.Fatalf("unexpected job order: %+v", result.Jobs)
	}
}

func TestFailedStepSkipsRemainingUnlessContinueOnError(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs: map[string]*pipeline.Job{
			"build": {ID: "build", Steps: []*pipeline.Step{
				{ID: "s1", DisplayName: "fails", Kind: pipeline.StepScript, Script: "exit 1"},
				{ID: "s2", DisplayName: "never-runs", Kind: pipeline.StepScript, Script: "true"},
			}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := s.Run(context.Background(), p, []string{"build"}, rc, Options{Runner: RunnerHost})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatal("expected overall failure")
	}
	steps := result.Jobs[0].Steps
	if steps[0].Success {
		t.Fatal("expected first step to fail")
	}
	if !steps[1].Skipped {
		t.Fatalf("expected second step to be skipped after failure, got %+v", steps[1])
	}
}

func TestContinueOnErrorAllowsRemainingSteps(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs: map[string]*pipeline.Job{
			"build": {ID: "build", Steps: []*pipeline.Step{
				{ID: "s1", Kind: pipeline.StepScript, Script: "exit 1", ContinueOnError: true},
				{ID: "s2", Kind: pipeline.StepScript, Script: "true"},
			}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := s.Run(context.Background(), p, []string{"build"}, rc, Options{Runner: RunnerHost})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected overall success since the failing step had continue-on-error: %+v", result)
	}
	if result.Jobs[0].Steps[1].Skipped {
		t.Fatal("expected second step to run despite the first step's failure")
	}
}

func TestDependentJobSkippedWhenDependencyFails(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build", "deploy"},
		Jobs: map[string]*pipeline.Job{
			"build":  {ID: "build", Steps: []*pipeline.Step{{ID: "s1", Kind: pipeline.StepScript, Script: "exit 1"}}},
			"deploy": {ID: "deploy", DependsOn: []string{"build"}, Steps: []*pipeline.Step{{ID: "s1", Kind: pipeline.StepScript, Script: "true"}}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := s.Run(context.Background(), p, []string{"build", "deploy"}, rc, Options{Runner: RunnerHost})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatal("expected overall failure")
	}

	var deploy *pipeline.JobResult
	for _, jr := range result.Jobs {
		if jr.ID == "deploy" {
			deploy = jr
		}
	}
	if deploy == nil || !deploy.Skipped {
		t.Fatalf("expected deploy to be skipped because build failed, got %+v", deploy)
	}
}

func TestParallelForbiddenInHostMode(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{JobOrder: []string{"a"}, Jobs: map[string]*pipeline.Job{"a": {ID: "a", Steps: []*pipeline.Step{{ID: "s", Kind: pipeline.StepScript, Script: "true"}}}}}
	rc := pipeline.NewRunContext(t.TempDir())

	_, err := s.Run(context.Background(), p, []string{"a"}, rc, Options{Runner: RunnerHost, Parallel: true})
	if err == nil {
		t.Fatal("expected parallel+host to be rejected")
	}
}

func TestStepFilterSkipsUnselectedSteps(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs: map[string]*pipeline.Job{
			"build": {ID: "build", Steps: []*pipeline.Step{
				{ID: "checkout", DisplayName: "Checkout", Kind: pipeline.StepScript, Script: "true"},
				{ID: "compile", DisplayName: "Build", Kind: pipeline.StepScript, Script: "true"},
			}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	result, err := s.Run(context.Background(), p, []string{"build"}, rc, Options{Runner: RunnerHost, FilterOptions: filter.Options{Names: []string{"Build"}}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	steps := result.Jobs[0].Steps
	if !steps[0].Skipped {
		t.Fatalf("expected Checkout to be filtered out, got %+v", steps[0])
	}
	if steps[1].Skipped {
		t.Fatalf("expected Build to execute, got %+v", steps[1])
	}
}

func TestCancellationMarksRunningStepCancelled(t *testing.T) {
	s := newTestScheduler()
	p := &pipeline.Pipeline{
		JobOrder: []string{"build"},
		Jobs: map[string]*pipeline.Job{
			"build": {ID: "build", Steps: []*pipeline.Step{{ID: "s1", Kind: pipeline.StepScript, Script: "sleep 5"}}},
		},
	}
	rc := pipeline.NewRunContext(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := s.Run(ctx, p, []string{"build"}, rc, Options{Runner: RunnerHost, GracePeriod: 2 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatal("expected cancellation to surface as failure")
	}
	if !result.Jobs[0].Steps[0].Cancelled {
		t.Fatalf("expected step to be marked cancelled, got %+v", result.Jobs[0].Steps[0])
	}
}
