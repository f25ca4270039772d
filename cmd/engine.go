package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdk-cli/pdk/internal/containerdriver"
	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/executorhost"
	"github.com/pdk-cli/pdk/internal/mask"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/ports"
	"github.com/pdk-cli/pdk/internal/provider"
	"github.com/pdk-cli/pdk/internal/scheduler"
	"github.com/pdk-cli/pdk/internal/secret"
	"github.com/pdk-cli/pdk/internal/variable"
)

// engine bundles the components every pipeline-touching command needs,
// wired once per invocation per spec §3's "RunContext is created per
// invocation" ownership rule - nothing here is a package-level singleton.
type engine struct {
	masker    *mask.Masker
	resolver  *variable.Resolver
	registry  *scheduler.Registry
	driver    ports.ContainerDriver
	store     *secret.Store
	scheduler *scheduler.Scheduler
}

// newEngine builds the masker, variable resolver (seeded from config,
// environment and secrets), executor registry (host + docker executors
// registered) and scheduler, in that order since each later stage reads
// the previous one.
func newEngine() (*engine, error) {
	masker := mask.New(flagNoRedact)

	secretPath, err := secret.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("resolving secret store path: %w", err)
	}
	store := secret.Open(secretPath, masker)

	resolver := variable.New(masker)
	resolver.LoadFromConfig(cfg)
	resolver.LoadFromEnvironment()
	if err := resolver.LoadSecrets(store); err != nil {
		// Secret store errors here are one corrupted/missing entry, not a
		// missing file (Open never touches disk) - surface but don't abort,
		// since most invocations never need a secret at all.
		fmt.Fprintf(os.Stderr, "%s loading secrets: %s\n", "!", err)
	}

	registry := scheduler.NewRegistry()
	for _, e := range executorhost.New() {
		registry.Register(e)
	}
	registry.Register(executorhost.CheckoutExecutor{})
	registry.Register(executorhost.UploadArtifactExecutor{})
	registry.Register(executorhost.DownloadArtifactExecutor{})

	driver := containerdriver.New()
	for _, e := range containerdriver.NewExecutors(driver) {
		registry.Register(e)
	}

	sched := scheduler.New(registry, driver, masker, resolver)

	return &engine{
		masker:    masker,
		resolver:  resolver,
		registry:  registry,
		driver:    driver,
		store:     store,
		scheduler: sched,
	}, nil
}

// resolvePipelineFile returns the explicit --file path, or the first
// auto-detected pipeline file under the working directory (spec §6.2).
func resolvePipelineFile() (string, error) {
	if flagFile != "" {
		return flagFile, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	candidates, err := provider.Discover(wd)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", errtax.New(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentFile, Number: 1},
			"no pipeline file found").
			WithSuggestions("pass --file explicitly",
				"supported locations: .github/workflows/*.yml, azure-pipelines.yml, .azure-pipelines/*.yml, *.pipeline.yml")
	}
	return candidates[0], nil
}

// loadPipeline resolves and parses the pipeline file, returning the IR
// plus the resolved absolute path (needed for the trust-on-first-run
// gate and run-history keys).
func loadPipeline() (*pipeline.Pipeline, string, error) {
	path, err := resolvePipelineFile()
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %q: %w", path, err)
	}
	p, err := provider.ParseFile(abs)
	if err != nil {
		return nil, abs, err
	}
	return p, abs, nil
}

// jobOrder returns the topological job order computed by a fresh dry-run
// validation pass on every call; a plan from an earlier dry run is not
// reused. The scheduler always wants an order, dry run or not.
func jobOrder(p *pipeline.Pipeline, e *engine) []string {
	result := dryRun(p, e, "")
	if result.Plan == nil {
		// Dependency errors exist; fall back to declared order so the
		// caller's own error reporting (from the dry run) is what the user
		// sees, not a second, redundant failure from the scheduler.
		return p.JobOrder
	}
	order := make([]string, 0, len(result.Plan.Jobs))
	for _, j := range result.Plan.Jobs {
		order = append(order, j.ID)
	}
	return order
}
