// Package variable implements the layered variable resolver and the
// interpolation expander from spec §4.1 and §4.2.
package variable

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const envVarPrefix = "PDK_VAR_"
const envSecretPrefix = "PDK_SECRET_"

// entry is one (value, source) pair held in the resolver's map.
type entry struct {
	value  string
	source Source
}

// Masker is the minimal surface the resolver needs to auto-register
// environment-sourced secrets; satisfied by *mask.Masker.
type Masker interface {
	RegisterSecret(string)
}

// SecretStore is the minimal surface LoadSecrets needs; satisfied by
// *secret.Store.
type SecretStore interface {
	GetAll() (map[string]string, error)
}

// Config is the minimal surface LoadFromConfig needs; satisfied by
// *config.Config.
type Config interface {
	Variables() map[string]string
}

// Resolver answers "what is the value of X" across the five sources from
// spec §3/§4.1, applying strict precedence. Each source's values live in
// their own map so ClearSource(source) is O(1) rather than a filtered
// rebuild, and each map is guarded by the same RWMutex (spec §5: "thread
// safe map per source; Set/Clear serialize with reads").
type Resolver struct {
	mu      sync.RWMutex
	byLevel map[Source]map[string]string
	masker  Masker
}

// New creates a Resolver seeded with the fixed built-in variables.
func New(masker Masker) *Resolver {
	r := &Resolver{
		byLevel: map[Source]map[string]string{
			SourceBuiltIn:       {},
			SourceConfiguration: {},
			SourceEnvironment:   {},
			SourceSecret:        {},
			SourceCliArgument:   {},
		},
		masker: masker,
	}
	r.seedBuiltins()
	return r
}

func (r *Resolver) seedBuiltins() {
	home, _ := os.UserHomeDir()
	wd, _ := os.Getwd()
	now := time.Now().UTC()
	builtins := map[string]string{
		"PDK_VERSION":    Version,
		"PDK_WORKSPACE":  wd,
		"PDK_RUNNER":     "",
		"PDK_JOB":        "",
		"PDK_STEP":       "",
		"HOME":           home,
		"USER":           os.Getenv("USER"),
		"PWD":            wd,
		"TIMESTAMP":      now.Format(time.RFC3339),
		"TIMESTAMP_UNIX": strconv.FormatInt(now.Unix(), 10),
	}
	r.byLevel[SourceBuiltIn] = builtins
}

// Version is the engine's own version string, exposed as PDK_VERSION.
var Version = "dev"

// Resolve returns the value of name at its highest-precedence source, or
// ("", false) if it is defined nowhere.
func (r *Resolver) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lvl := range []Source{SourceCliArgument, SourceSecret, SourceEnvironment, SourceConfiguration, SourceBuiltIn} {
		if v, ok := r.byLevel[lvl][name]; ok {
			return v, true
		}
	}
	return "", false
}

// ResolveOr returns Resolve(name), falling back to def when undefined.
func (r *Resolver) ResolveOr(name, def string) string {
	if v, ok := r.Resolve(name); ok {
		return v
	}
	return def
}

// Contains reports whether name is defined in any source.
func (r *Resolver) Contains(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// SourceOf returns which source would win for name, if any.
func (r *Resolver) SourceOf(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lvl := range []Source{SourceCliArgument, SourceSecret, SourceEnvironment, SourceConfiguration, SourceBuiltIn} {
		if _, ok := r.byLevel[lvl][name]; ok {
			return lvl, true
		}
	}
	return 0, false
}

// GetAll returns every defined name mapped to its precedence-resolved
// value (spec §4.1).
func (r *Resolver) GetAll() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for _, lvl := range []Source{SourceBuiltIn, SourceConfiguration, SourceEnvironment, SourceSecret, SourceCliArgument} {
		for k, v := range r.byLevel[lvl] {
			out[k] = v
		}
	}
	return out
}

// Set stores value for name at the given source.
func (r *Resolver) Set(name, value string, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLevel[source][name] = value
}

// ClearSource removes every variable previously set at source.
func (r *Resolver) ClearSource(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLevel[source] = make(map[string]string)
}

// LoadFromConfig loads Configuration-precedence variables.
func (r *Resolver) LoadFromConfig(cfg Config) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range cfg.Variables() {
		r.byLevel[SourceConfiguration][k] = v
	}
}

// LoadFromEnvironment reads the raw process environment at Environment
// precedence, then layers PDK_VAR_<name> (also Environment precedence,
// with the prefix stripped) and PDK_SECRET_<name> (Secret precedence,
// auto-registered with the masker) on top, per spec §4.1. The prefixed
// forms are applied after the raw pass so a `PDK_VAR_NAME` always wins
// over a same-named bare `NAME` regardless of os.Environ()'s iteration
// order.
func (r *Resolver) LoadFromEnvironment() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(name, envSecretPrefix) || strings.HasPrefix(name, envVarPrefix) {
			continue
		}
		r.byLevel[SourceEnvironment][name] = value
	}

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(name, envSecretPrefix):
			stripped := strings.TrimPrefix(name, envSecretPrefix)
			r.byLevel[SourceSecret][stripped] = value
			if r.masker != nil {
				r.masker.RegisterSecret(value)
			}
		case strings.HasPrefix(name, envVarPrefix):
			stripped := strings.TrimPrefix(name, envVarPrefix)
			r.byLevel[SourceEnvironment][stripped] = value
		}
	}
}

// LoadSecrets loads every secret from store at Secret precedence and
// registers each value with the masker.
func (r *Resolver) LoadSecrets(store SecretStore) error {
	if store == nil {
		return nil
	}
	all, err := store.GetAll()
	if err != nil {
		return fmt.Errorf("loading secrets into resolver: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range all {
		r.byLevel[SourceSecret][k] = v
		if r.masker != nil {
			r.masker.RegisterSecret(v)
		}
	}
	return nil
}

// UpdateContext merges in a RunContext's CLI-supplied variable overlay at
// CliArgument precedence. It does not touch the PDK_JOB/PDK_STEP/
// PDK_RUNNER built-ins; SetBuiltin updates those.
func (r *Resolver) UpdateContext(variables map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range variables {
		r.byLevel[SourceCliArgument][k] = v
	}
}

// SetBuiltin updates one of the mutable built-ins (PDK_JOB, PDK_STEP,
// PDK_RUNNER) as execution progresses.
func (r *Resolver) SetBuiltin(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLevel[SourceBuiltIn][name] = value
}
