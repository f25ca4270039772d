package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/config"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/filter"
	"github.com/pdk-cli/pdk/internal/history"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/scheduler"
	"github.com/pdk-cli/pdk/internal/tui"
)

var (
	runDryRun        bool
	runOutputFormat  string
	runJobs          []string
	runSteps         []string
	runStepIndex     string
	runStepRange     string
	runSkipSteps     []string
	runVars          []string
	runHost          bool
	runDocker        bool
	runWatch         bool
	runWorkspace     string
	runTimeout       time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runWatch && runDryRun {
			return fmt.Errorf("--watch and --dry-run are mutually exclusive")
		}

		p, abs, err := loadPipeline()
		if err != nil {
			return err
		}
		e, err := newEngine()
		if err != nil {
			return err
		}

		if err := applyCliVars(e, runVars); err != nil {
			return err
		}

		fopts, err := buildFilterOptions()
		if err != nil {
			return err
		}

		runnerMode, err := resolveRunnerMode()
		if err != nil {
			return err
		}

		if runDryRun {
			result := dryRun(p, e, runnerTypeForMode(runnerMode))
			printDryRun(result, runOutputFormat)
			if !result.OK() {
				os.Exit(errtax.ExitFailure)
			}
			return nil
		}

		if runWatch {
			return runWatchLoop(cmd.Context(), p, abs, e, fopts, runnerMode)
		}

		if err := ensureTrustedPipeline(abs); err != nil {
			return err
		}

		result, err := executeOnce(cmd.Context(), p, abs, e, fopts, runnerMode)
		if err != nil {
			return err
		}
		if !result.Success {
			os.Exit(errtax.ExitFailure)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runDryRun, "dry-run", "n", false, "validate only; never invoke a step executor")
	runCmd.Flags().StringVar(&runOutputFormat, "output", "text", "output format: text or json")
	runCmd.Flags().StringArrayVar(&runJobs, "job", nil, "run only this job (repeatable)")
	runCmd.Flags().StringArrayVar(&runSteps, "step", nil, "run only steps matching this name (repeatable)")
	runCmd.Flags().StringVar(&runStepIndex, "step-index", "", "run only steps at these 1-based indices, e.g. \"1,3-5,7\"")
	runCmd.Flags().StringVar(&runStepRange, "step-range", "", "run only steps in this inclusive range, e.g. \"2-5\" or \"Build-Test\"")
	runCmd.Flags().StringArrayVar(&runSkipSteps, "skip-step", nil, "skip steps matching this name (repeatable)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "set a CLI-precedence variable as KEY=VALUE (repeatable)")
	runCmd.Flags().BoolVar(&runHost, "host", false, "force host runner mode")
	runCmd.Flags().BoolVar(&runDocker, "docker", false, "force docker runner mode")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "re-run on file changes (mutually exclusive with --dry-run)")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace root (defaults to the current directory)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout")
}

func applyCliVars(e *engine, vars []string) error {
	overlay := make(map[string]string, len(vars))
	for _, kv := range vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --var %q: expected KEY=VALUE", kv)
		}
		overlay[name] = value
	}
	e.resolver.UpdateContext(overlay)
	return nil
}

func resolveRunnerMode() (scheduler.RunnerMode, error) {
	if runHost && runDocker {
		return scheduler.RunnerAuto, fmt.Errorf("--host and --docker are mutually exclusive")
	}
	if runHost {
		return scheduler.RunnerHost, nil
	}
	if runDocker {
		return scheduler.RunnerDocker, nil
	}
	if cfg != nil && cfg.DefaultRunner != "" {
		switch cfg.DefaultRunner {
		case "host":
			return scheduler.RunnerHost, nil
		case "docker":
			return scheduler.RunnerDocker, nil
		}
	}
	return scheduler.RunnerAuto, nil
}

func runnerTypeForMode(mode scheduler.RunnerMode) string {
	switch mode {
	case scheduler.RunnerHost:
		return "host"
	case scheduler.RunnerDocker:
		return "docker"
	default:
		return ""
	}
}

func buildFilterOptions() (filter.Options, error) {
	var ranges []filter.RangeSpec
	if runStepRange != "" {
		rs, err := parseRangeSpec(runStepRange)
		if err != nil {
			return filter.Options{}, err
		}
		ranges = append(ranges, rs)
	}
	return filter.Options{
		Names:     runSteps,
		Indices:   runStepIndex,
		Ranges:    ranges,
		SkipNames: runSkipSteps,
		JobNames:  runJobs,
	}, nil
}

// parseRangeSpec parses a single "--step-range" value into a RangeSpec,
// preferring the numeric form when both endpoints parse as integers
// (spec §3 FilterOptions.ranges: "numeric a-b or named \"A\"-\"B\", both
// inclusive").
func parseRangeSpec(spec string) (filter.RangeSpec, error) {
	idx := strings.Index(spec, "-")
	if idx <= 0 || idx == len(spec)-1 {
		return filter.RangeSpec{}, fmt.Errorf("invalid --step-range %q: expected \"start-end\"", spec)
	}
	start := strings.Trim(spec[:idx], `"`)
	end := strings.Trim(spec[idx+1:], `"`)

	startN, errA := strconv.Atoi(start)
	endN, errB := strconv.Atoi(end)
	if errA == nil && errB == nil {
		return filter.RangeSpec{NumericStart: startN, NumericEnd: endN}, nil
	}
	return filter.RangeSpec{Named: true, NamedStart: start, NamedEnd: end}, nil
}

// ensureTrustedPipeline implements the supplemented trust-on-first-run
// gate: before executing steps from a pipeline file the user has not
// seen before (tracked by content hash), prompt once and persist the
// decision.
func ensureTrustedPipeline(path string) error {
	if cfg == nil {
		cfg = &config.Config{}
	}
	content, err := os.ReadFile(path) //nolint:gosec // path resolved from --file or auto-discovery under the workspace
	if err != nil {
		return fmt.Errorf("reading pipeline file: %w", err)
	}
	hash := config.HashPipelineFile(content)
	if cfg.IsTrusted(hash) {
		return nil
	}
	if !isInteractive() {
		return fmt.Errorf("pipeline file not trusted: run 'pdk run' interactively once to trust it, or 'pdk validate'/--dry-run which never executes anything")
	}

	model := tui.NewTrustPromptModel(tui.TrustPromptInfo{PipelinePath: path, ContentHash: hash})
	if _, err := runTeaProgram(model); err != nil {
		return fmt.Errorf("trust prompt failed: %w", err)
	}
	result := model.GetResult()
	if result == nil || result.Cancelled || !result.Trusted {
		return fmt.Errorf("pipeline trust declined")
	}
	return cfg.Trust(hash, path)
}

// executeOnce runs the scheduler exactly once against p, rendering live
// progress and recording the outcome to run history.
func executeOnce(ctx context.Context, p *pipeline.Pipeline, abs string, e *engine, fopts filter.Options, runnerMode scheduler.RunnerMode) (*scheduler.RunResult, error) {
	workDir := runWorkspace
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}

	order := jobOrder(p, e)
	tracker := tui.NewJobTracker(order, jobDisplayNames(p))

	rc := pipeline.NewRunContext(workDir)
	rc.ArtifactsDir = filepath.Join(workDir, ".pdk", "artifacts")
	rc.PreferContainer = runnerMode == scheduler.RunnerDocker

	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	live := isInteractive() && runOutputFormat != "json"
	var program *tea.Program
	var programDone chan *tui.LiveProgressModel
	if live {
		program = tea.NewProgram(tui.NewLiveProgressModel(tracker), tea.WithOutput(os.Stderr))
		programDone = make(chan *tui.LiveProgressModel, 1)
		go func() {
			final, _ := program.Run()
			programDone <- final.(*tui.LiveProgressModel) //nolint:forcetypeassert // Run always returns our own model back
			close(programDone)
		}()
	}

	started := time.Now()
	schedOpts := scheduler.Options{
		Runner:        runnerMode,
		FilterOptions: fopts,
	}
	if live {
		schedOpts.Progress = &scheduler.ProgressHooks{
			OnJobStart:  func(id string) { program.Send(tui.JobEventMsg{Kind: tui.JobEventStart, ID: id}) },
			OnJobFinish: func(id string, success bool) { program.Send(tui.JobEventMsg{Kind: tui.JobEventFinish, ID: id, Success: success}) },
			OnJobSkip:   func(id, _ string) { program.Send(tui.JobEventMsg{Kind: tui.JobEventSkip, ID: id}) },
		}
	}

	result, err := e.scheduler.Run(ctx, p, order, rc, schedOpts)
	if err != nil {
		if live {
			program.Send(tui.DoneMsg{})
			<-programDone
		}
		return nil, err
	}

	if live {
		program.Send(tui.DoneMsg{})
		<-programDone
	} else {
		for _, jr := range result.Jobs {
			tracker.Finish(jr.ID, jr.Success)
		}
		if runOutputFormat != "json" {
			fmt.Println(tracker.Render())
		}
	}

	recordHistory(abs, p, runnerMode, result, started)
	return result, nil
}

func jobDisplayNames(p *pipeline.Pipeline) map[string]string {
	names := make(map[string]string, len(p.Jobs))
	for id, job := range p.Jobs {
		if job.DisplayName != "" {
			names[id] = job.DisplayName
		}
	}
	return names
}

func recordHistory(pipelineFile string, p *pipeline.Pipeline, runnerMode scheduler.RunnerMode, result *scheduler.RunResult, started time.Time) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	store, err := history.Open(history.DefaultPath(wd))
	if err != nil {
		return // run history is best-effort; never fail a run because of it
	}
	defer store.Close()
	_, _ = store.RecordRun(pipelineFile, p.Name, p.Provider.String(), runnerMode.String(), result.Success, result.Jobs, started)
}
