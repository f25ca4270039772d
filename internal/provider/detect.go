// Package provider wires the concrete parser-port implementations
// (internal/provider/ghactions, internal/provider/azuredevops) together
// behind a single auto-detection entry point, per spec §6.2.
package provider

import (
	"path/filepath"
	"sort"

	"github.com/pdk-cli/pdk/internal/errtax"
	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/ports"
	"github.com/pdk-cli/pdk/internal/provider/azuredevops"
	"github.com/pdk-cli/pdk/internal/provider/ghactions"
)

// Parsers returns every parser this engine ships, in a stable,
// deterministic order used both for CanParse matching and auto-discovery.
func Parsers() []ports.Parser {
	return []ports.Parser{ghactions.New(), azuredevops.New()}
}

// Detect returns the first parser able to handle path.
func Detect(path string) (ports.Parser, bool) {
	for _, p := range Parsers() {
		if p.CanParse(path) {
			return p, true
		}
	}
	return nil, false
}

// ParseFile auto-detects the provider for path and parses it.
func ParseFile(path string) (*pipeline.Pipeline, error) {
	p, ok := Detect(path)
	if !ok {
		return nil, errtax.Newf(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentParser, Number: 6}, "no provider recognizes pipeline file %q", path).
			WithSuggestions("pass --file explicitly if the path doesn't match a standard provider location",
				"supported locations: .github/workflows/*.yml, azure-pipelines.yml, .azure-pipelines/*.yml, *.pipeline.yml")
	}
	return p.ParseFile(path)
}

// discoveryGlobs are the relative glob patterns spec §6.2 names for
// auto-discovering a pipeline file when none is given explicitly.
var discoveryGlobs = []string{
	".github/workflows/*.yml",
	".github/workflows/*.yaml",
	"azure-pipelines.yml",
	"azure-pipelines.yaml",
	".azure-pipelines/*.yml",
	".azure-pipelines/*.yaml",
	"*.pipeline.yml",
	"*.pipeline.yaml",
}

// Discover finds candidate pipeline files under root by matching the
// standard provider locations, sorted for deterministic ordering.
func Discover(root string) ([]string, error) {
	var found []string
	for _, g := range discoveryGlobs {
		matches, err := filepath.Glob(filepath.Join(root, g))
		if err != nil {
			return nil, errtax.Wrap(errtax.Code{Severity: errtax.SeverityError, Component: errtax.ComponentFile, Number: 2}, err, "globbing for pipeline files")
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found, nil
}
