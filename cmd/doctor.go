package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/tui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run local diagnostics: executor reachability, container health, workspace and secret store access",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}

		checkNames := []string{"workspace", "secret store", "container driver", "executors"}
		display := tui.NewPreflightDisplay(checkNames)

		runDoctorChecks(cmd.Context(), e, display)
		display.Render()

		if !display.AllSuccess() {
			os.Exit(errtax.ExitPrecondition)
		}
		return nil
	},
}

func runDoctorChecks(ctx context.Context, e *engine, display *tui.PreflightDisplay) {
	checkWorkspace(display)
	checkSecretStore(e, display)
	checkContainerDriver(ctx, e, display)
	checkExecutors(e, display)
}

// checkWorkspace verifies the current directory is writable, since every
// step executor and the artifact/history stores assume it is.
func checkWorkspace(display *tui.PreflightDisplay) {
	wd, err := os.Getwd()
	if err != nil {
		display.UpdateCheck("workspace", "error", "", err)
		return
	}
	probe := filepath.Join(wd, ".pdk-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		display.UpdateCheck("workspace", "error", wd, err)
		return
	}
	_ = os.Remove(probe)
	display.UpdateCheck("workspace", "success", wd, nil)
}

// checkSecretStore exercises a full write/read/delete round trip against
// a throwaway entry, proving the AES key derivation and on-disk format
// are usable before a real run needs a secret mid-pipeline.
func checkSecretStore(e *engine, display *tui.PreflightDisplay) {
	const probeName = "PDK_DOCTOR_PROBE"
	if err := e.store.Set(probeName, "probe-value"); err != nil {
		display.UpdateCheck("secret store", "error", "", err)
		return
	}
	defer e.store.Delete(probeName) //nolint:errcheck // best-effort cleanup of a throwaway probe entry

	value, err := e.store.Get(probeName)
	if err != nil {
		display.UpdateCheck("secret store", "error", "", err)
		return
	}
	if value != "probe-value" {
		display.UpdateCheck("secret store", "error", "", fmt.Errorf("round-trip mismatch"))
		return
	}
	display.UpdateCheck("secret store", "success", "", nil)
}

func checkContainerDriver(ctx context.Context, e *engine, display *tui.PreflightDisplay) {
	health := e.driver.IsHealthy(ctx)
	if !health.Available {
		display.UpdateCheck("container driver", "error", "", health.Err)
		return
	}
	detail := health.Platform
	if health.Version != "" {
		detail = health.Version + " " + detail
	}
	display.UpdateCheck("container driver", "success", detail, nil)
}

// checkExecutors confirms every step kind the registry knows about can
// resolve on at least one runner, so "no executor found" failures
// surface here instead of mid-run.
func checkExecutors(e *engine, display *tui.PreflightDisplay) {
	kinds := e.registry.GetAvailableStepTypes("")
	if len(kinds) == 0 {
		display.UpdateCheck("executors", "error", "", fmt.Errorf("no step executors registered"))
		return
	}
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	display.UpdateCheck("executors", "success", fmt.Sprintf("%d step kind(s)", len(names)), nil)
}
