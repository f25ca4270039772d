package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/history"
	"github.com/pdk-cli/pdk/internal/render"
	"github.com/pdk-cli/pdk/internal/tui"
)

var (
	listOutputFormat string
	listHistory      bool
	listHistoryLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the jobs and steps a pipeline file defines",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, abs, err := loadPipeline()
		if err != nil {
			return err
		}

		if listHistory {
			return printHistory(abs, listHistoryLimit)
		}

		if listOutputFormat == "json" {
			data, err := render.PipelineJSON(p, true)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%s (%s)\n", p.Name, p.Provider)
		for _, job := range p.OrderedJobs() {
			label := job.DisplayName
			if label == "" {
				label = job.ID
			}
			fmt.Printf("%s %s [%s] - %d step(s)\n", tui.Bullet(), label, job.RunnerLabel, len(job.Steps))
			if len(job.DependsOn) > 0 {
				fmt.Printf("    needs: %s\n", strings.Join(job.DependsOn, ", "))
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listOutputFormat, "output", "text", "output format: text or json")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "show recent run history for this pipeline file instead of its definition")
	listCmd.Flags().IntVar(&listHistoryLimit, "limit", 10, "number of recent runs to show with --history")
}

func printHistory(pipelineFile string, limit int) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	store, err := history.Open(history.DefaultPath(wd))
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(pipelineFile, limit)
	if err != nil {
		return fmt.Errorf("reading run history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs for this pipeline file")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s %s  %s  %s  %s\n",
			tui.StatusIcon(r.Success),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.RunnerMode,
			r.Duration.Round(time.Millisecond),
			r.RunID)
	}
	return nil
}
