// Package config implements global and per-repository configuration
// loading (spec §4.1's Configuration variable source) plus trust-on-
// first-run tracking for pipeline files, grounded in the same
// global+local JSON config merge pattern used elsewhere in this engine.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	pdkDirName        = ".pdk"
	globalConfigFile  = "config.json"
	localConfigFile   = "pdk.json"

	// HomeEnv overrides the engine's home directory; used by tests and by
	// operators who want an isolated config location.
	HomeEnv = "PDK_HOME"
)

var (
	cachedDir   string
	cachedDirMu sync.RWMutex
)

// TrustedPipeline records that a user has accepted running a specific
// pipeline file content, keyed by its SHA-256 hash so any edit to the
// file requires re-trusting it (spec's trust-on-first-run supplement).
type TrustedPipeline struct {
	Path      string    `json:"path,omitempty"`
	TrustedAt time.Time `json:"trusted_at"`
}

// GlobalConfig is ~/.pdk/config.json.
type GlobalConfig struct {
	Variables        map[string]string          `json:"variables,omitempty"`
	TrustedPipelines map[string]TrustedPipeline `json:"trusted_pipelines,omitempty"`
	DefaultRunner    string                      `json:"default_runner,omitempty"`
	NoRedact         bool                        `json:"no_redact,omitempty"`
}

// LocalConfig is pdk.json in the repository root.
type LocalConfig struct {
	Variables     map[string]string `json:"variables,omitempty"`
	DefaultRunner string            `json:"default_runner,omitempty"`
}

// Config is the merged, resolved view handed to the rest of the engine.
type Config struct {
	DefaultRunner string
	NoRedact      bool

	global   *GlobalConfig
	local    *LocalConfig
	repoRoot string
}

// Variables implements variable.Config: local overrides global, matching
// the rest of this engine's layered-precedence convention.
func (c *Config) Variables() map[string]string {
	out := make(map[string]string)
	if c.global != nil {
		for k, v := range c.global.Variables {
			out[k] = v
		}
	}
	if c.local != nil {
		for k, v := range c.local.Variables {
			out[k] = v
		}
	}
	return out
}

// Dir returns the global pdk directory (~/.pdk, or $PDK_HOME if set).
func Dir() (string, error) {
	if override := os.Getenv(HomeEnv); override != "" {
		return filepath.Clean(override), nil
	}

	cachedDirMu.RLock()
	cached := cachedDir
	cachedDirMu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	cachedDirMu.Lock()
	defer cachedDirMu.Unlock()
	if cachedDir != "" {
		return cachedDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	cachedDir = filepath.Join(home, pdkDirName)
	return cachedDir, nil
}

func configPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, globalConfigFile), nil
}

// Load reads the global config and, if repoRoot is non-empty, the local
// config, and returns the merged result.
func Load(repoRoot string) (*Config, error) {
	global, err := loadGlobal()
	if err != nil {
		return nil, err
	}
	var local *LocalConfig
	if repoRoot != "" {
		local, err = loadLocal(repoRoot)
		if err != nil {
			return nil, err
		}
	}
	return merge(global, local, repoRoot), nil
}

func merge(global *GlobalConfig, local *LocalConfig, repoRoot string) *Config {
	c := &Config{global: global, local: local, repoRoot: repoRoot}
	if global != nil {
		c.DefaultRunner = global.DefaultRunner
		c.NoRedact = global.NoRedact
	}
	if local != nil && local.DefaultRunner != "" {
		c.DefaultRunner = local.DefaultRunner
	}
	return c
}

func loadGlobal() (*GlobalConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is home-directory-scoped
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return &GlobalConfig{}, nil
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadLocal(dir string) (*LocalConfig, error) {
	path := filepath.Clean(filepath.Join(dir, localConfigFile))
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from the caller's own repo root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var cfg LocalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveGlobal(g *GlobalConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// HashPipelineFile returns the SHA-256 hex digest of content, the
// immutable identifier trust decisions are keyed by: any edit changes
// the hash and requires re-trusting the file.
func HashPipelineFile(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsTrusted reports whether contentHash has previously been trusted.
func (c *Config) IsTrusted(contentHash string) bool {
	if c.global == nil {
		return false
	}
	_, ok := c.global.TrustedPipelines[contentHash]
	return ok
}

// Trust records contentHash (and, for operator convenience, the path it
// was found at) as trusted and persists the global config.
func (c *Config) Trust(contentHash, path string) error {
	if c.global == nil {
		c.global = &GlobalConfig{}
	}
	if c.global.TrustedPipelines == nil {
		c.global.TrustedPipelines = make(map[string]TrustedPipeline)
	}
	c.global.TrustedPipelines[contentHash] = TrustedPipeline{Path: path, TrustedAt: time.Now().UTC()}
	return saveGlobal(c.global)
}
