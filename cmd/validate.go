package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/render"
	"github.com/pdk-cli/pdk/internal/validate"
)

var validateOutputFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the dry-run validation pipeline and print the execution plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := loadPipeline()
		if err != nil {
			return err
		}
		e, err := newEngine()
		if err != nil {
			return err
		}
		result := dryRun(p, e, "")
		printDryRun(result, validateOutputFormat)
		if !result.OK() {
			os.Exit(errtax.ExitFailure)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateOutputFormat, "output", "text", "output format: text or json")
}

// dryRun runs the four-phase validation pipeline from spec §4 against p.
// runnerType narrows the Executor phase's reachability check to a single
// runner ("host"/"docker"); "" means "auto" (either counts).
func dryRun(p *pipeline.Pipeline, e *engine, runnerType string) *validate.DryRunResult {
	return validate.Run(p, e.registry, e.resolver, validate.Options{RunnerType: runnerType})
}

func printDryRun(result *validate.DryRunResult, format string) {
	if format == "json" {
		data, err := render.DryRunJSON(result)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Println(string(data))
		return
	}
	fmt.Print(render.DryRunText(result))
}
