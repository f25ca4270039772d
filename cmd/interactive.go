package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/filter"
	"github.com/pdk-cli/pdk/internal/tui"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Browse a pipeline's jobs and choose which to run before executing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isInteractive() {
			return fmt.Errorf("interactive mode requires a terminal; use 'pdk run --job <name>' instead")
		}

		p, abs, err := loadPipeline()
		if err != nil {
			return err
		}
		e, err := newEngine()
		if err != nil {
			return err
		}

		order := jobOrder(p, e)
		items := make([]tui.JobSelectItem, 0, len(order))
		for _, id := range order {
			job, ok := p.Jobs[id]
			if !ok {
				continue
			}
			name := job.DisplayName
			if name == "" {
				name = job.ID
			}
			items = append(items, tui.JobSelectItem{
				ID:        job.ID,
				Name:      name,
				StepCount: len(job.Steps),
				RunnerTag: fmt.Sprintf("(%s, %d step(s))", job.RunnerLabel, len(job.Steps)),
			})
		}

		model := tui.NewJobSelectModel(items)
		finalModel, err := runTeaProgram(model)
		if err != nil {
			return fmt.Errorf("interactive browser failed: %w", err)
		}
		selector, ok := finalModel.(*tui.JobSelectModel)
		if !ok || !selector.WasSaved() {
			fmt.Println("cancelled, nothing executed")
			return nil
		}

		fopts := buildInteractiveFilterOptions(order, selector.Selection())

		runnerMode, err := resolveRunnerMode()
		if err != nil {
			return err
		}
		if err := ensureTrustedPipeline(abs); err != nil {
			return err
		}

		result, err := executeOnce(cmd.Context(), p, abs, e, fopts, runnerMode)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("one or more jobs failed")
		}
		return nil
	},
}

// buildInteractiveFilterOptions turns the browser's per-job auto/run/skip
// states into a filter.Options job allow-list: an explicit "run" state on
// any job narrows execution to just those jobs; otherwise every job runs
// except the ones explicitly marked "skip".
func buildInteractiveFilterOptions(order []string, states map[string]tui.JobState) filter.Options {
	var runOnly []string
	for _, id := range order {
		if states[id] == tui.JobStateRun {
			runOnly = append(runOnly, id)
		}
	}
	if len(runOnly) > 0 {
		return filter.Options{JobNames: runOnly}
	}

	var names []string
	for _, id := range order {
		if states[id] != tui.JobStateSkip {
			names = append(names, id)
		}
	}
	return filter.Options{JobNames: names}
}
