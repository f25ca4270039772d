package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/filter"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/provider"
	"github.com/pdk-cli/pdk/internal/scheduler"
	"github.com/pdk-cli/pdk/internal/tui"
	"github.com/pdk-cli/pdk/internal/watch"
)

var (
	watchJobs       []string
	watchHost       bool
	watchDocker     bool
	watchQuietMs    int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run a pipeline every time its workspace files change (spec §4.7)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, abs, err := loadPipeline()
		if err != nil {
			return err
		}
		e, err := newEngine()
		if err != nil {
			return err
		}
		if watchHost && watchDocker {
			return fmt.Errorf("--host and --docker are mutually exclusive")
		}
		var runnerMode scheduler.RunnerMode
		switch {
		case watchHost:
			runnerMode = scheduler.RunnerHost
		case watchDocker:
			runnerMode = scheduler.RunnerDocker
		default:
			runnerMode, err = resolveRunnerMode()
			if err != nil {
				return err
			}
		}

		fopts := filter.Options{JobNames: watchJobs}

		if err := ensureTrustedPipeline(abs); err != nil {
			return err
		}

		return runWatchLoop(cmd.Context(), p, abs, e, fopts, runnerMode)
	},
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchJobs, "job", nil, "watch and run only this job (repeatable)")
	watchCmd.Flags().BoolVar(&watchHost, "host", false, "force host runner mode")
	watchCmd.Flags().BoolVar(&watchDocker, "docker", false, "force docker runner mode")
	watchCmd.Flags().IntVar(&watchQuietMs, "quiet", 500, "debounce quiet period in milliseconds (spec §4.7 default 500ms)")
}

// runWatchLoop drives the watch/debounce/queue pipeline from
// internal/watch against the given pipeline file, reparsing it on every
// batch so edits to the pipeline definition itself take effect on the
// next run, not just edits to the files it builds. It powers both the
// standalone watch command and "run --watch".
func runWatchLoop(ctx context.Context, p *pipeline.Pipeline, abs string, e *engine, fopts filter.Options, runnerMode scheduler.RunnerMode) error {
	root := filepath.Dir(abs)

	generation := 0
	loop := &watch.Loop{
		Root:  root,
		Quiet: time.Duration(watchQuietMs) * time.Millisecond,
		Run: func(runCtx context.Context, batch watch.Batch) error {
			generation++
			if generation == 1 {
				fmt.Printf("%s initial run\n", tui.Bullet())
			} else {
				fmt.Printf("%s %d file(s) changed, re-running\n", tui.Bullet(), len(batch.Changes))
			}

			runP := p
			if generation > 1 {
				if fresh, ferr := provider.ParseFile(abs); ferr == nil {
					runP = fresh
				} else {
					fmt.Printf("%s pipeline file no longer parses: %s\n", tui.Bullet(), ferr)
					return ferr
				}
			}

			_, err := executeOnce(runCtx, runP, abs, e, fopts, runnerMode)
			return err
		},
	}

	if err := loop.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
