// Package cmd implements the CLI surface from spec §6.1: command
// registration, persistent flags, and the glue that wires the engine's
// internal packages (variable resolver, secret store, scheduler, watch
// loop) together for each subcommand. Structured the way the teacher's
// cmd/root.go registers commands and loads config in PersistentPreRunE.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/config"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/tui"
)

// Version is set at build time via -ldflags; defaults to "dev".
var Version = "dev"

// Global flags shared across commands (spec §6.1).
var (
	flagFile     string
	flagVerbose  bool
	flagTrace    bool
	flagQuiet    bool
	flagSilent   bool
	flagLogFile  string
	flagLogJSON  string
	flagNoRedact bool
)

// cfg holds the loaded, merged configuration; initialized once in
// PersistentPreRunE and read by every subcommand.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pdk",
	Short: "Run hosted CI/CD pipelines locally before pushing",
	Long: `pdk executes GitHub Actions and Azure DevOps pipeline definitions on
this machine, producing the same job/step outcomes without pushing to the
provider. Validate pipelines before committing, iterate on failures
locally, and run selected jobs or steps through Docker or directly on
the host.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: persistentPreRun,
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	configureLogging()

	repoRoot, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	loaded, loadErr := config.Load(repoRoot)
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "%s config error: %s\n", tui.WarningStyle.Render("!"), loadErr)
		loaded = &config.Config{}
	}
	cfg = loaded
	return nil
}

func configureLogging() {
	level := slog.LevelInfo
	switch {
	case flagSilent:
		level = slog.LevelError + 4 // effectively disables all logging
	case flagQuiet:
		level = slog.LevelWarn
	case flagTrace:
		level = slog.LevelDebug - 4
	case flagVerbose:
		level = slog.LevelDebug
	}

	var handler slog.Handler
	var out io.Writer = io.Discard
	if !flagSilent {
		out = os.Stderr
	}
	if flagLogJSON != "" {
		f, err := os.OpenFile(flagLogJSON, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
			return
		}
	}
	if flagLogFile != "" {
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			out = f
		}
	}
	handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command with signal-driven cancellation wired to
// a context, the same shape the teacher uses for its top-level runner.
func Execute() error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagFile, "file", "f", "", "pipeline file path (auto-detected if omitted)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "trace-level logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "warnings and errors only")
	rootCmd.PersistentFlags().BoolVar(&flagSilent, "silent", false, "no logging output at all")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "append text logs to this file")
	rootCmd.PersistentFlags().StringVar(&flagLogJSON, "log-json", "", "append JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&flagNoRedact, "no-redact", false, "disable secret masking in output (spec §8 scenario S6)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(watchCmd)
}

// isInteractive reports whether stdin is a TTY, gating prompts and the
// bubbletea surfaces the way the teacher's ensureAPIKey/trust prompt do.
func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

// runTeaProgram runs a bubbletea program to completion; extracted so
// every prompt in this package has one error-handling path.
func runTeaProgram(model tea.Model) (tea.Model, error) {
	return tea.NewProgram(model).Run()
}

// ExitCodeFor maps a returned error to the stable process exit code from
// spec §6.1; main uses this to translate cmd.Execute's return value.
func ExitCodeFor(err error) int {
	if err == nil {
		return errtax.ExitSuccess
	}
	if perr, ok := err.(*errtax.Error); ok {
		switch {
		case perr.Code.Component == errtax.ComponentParser && perr.Code.Number == 1:
			return errtax.ExitFileNotFoundOrParse
		case perr.Code == errtax.CodeDockerUnavailable:
			return errtax.ExitPrecondition
		}
	}
	if err == context.Canceled {
		return errtax.ExitCancelled
	}
	return errtax.ExitFailure
}
