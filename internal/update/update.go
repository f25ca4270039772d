// Package update implements the non-critical update-check stamp from
// spec §6.3: a best-effort HTTP fetch of a version manifest, cached for
// 24h at a user-home-scoped path, silent on any failure so it never
// blocks a CLI invocation. Suppressed entirely by the CI environment
// variables listed in spec §6.4.
package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const (
	defaultManifestURL = "https://pdk-cli.dev/api/releases/manifest.json"
	cacheFile           = "update-check.json"
	cacheDuration       = 24 * time.Hour
	httpTimeout         = 5 * time.Second

	// maxResponseSize limits the manifest response to prevent memory
	// exhaustion from a malicious or broken server.
	maxResponseSize = 64 * 1024

	// PDKHomeEnv overrides the directory the cache file is stored in;
	// set in tests to redirect away from the real user home.
	PDKHomeEnv = "PDK_HOME"
)

// ciEnvVars are checked by Suppressed; any one present disables the
// update-check side effect (spec §6.4).
var ciEnvVars = []string{
	"CI", "GITHUB_ACTIONS", "AZURE_PIPELINES", "TF_BUILD", "GITLAB_CI",
	"JENKINS_URL", "TRAVIS", "CIRCLECI", "BUILDKITE", "TEAMCITY_VERSION",
}

// Suppressed reports whether the current environment matches spec §6.4's
// CI detection list, in which case callers should skip Check entirely.
func Suppressed() bool {
	for _, name := range ciEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// manifestURL is the URL to fetch the manifest from; overridden in tests.
var manifestURL = defaultManifestURL

type manifest struct {
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

type cache struct {
	LastCheck     time.Time `json:"lastCheck"`
	LatestVersion string    `json:"latestVersion"`
}

func cacheDir() (string, error) {
	if dir := os.Getenv(PDKHomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".pdk"), nil
}

func getCachePath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFile), nil
}

func loadCache() *cache {
	path, err := getCachePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is home/PDK_HOME-scoped
	if err != nil {
		return nil
	}
	var c cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}

func saveCache(c *cache) {
	path, err := getCachePath()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

func fetchLatestVersion() (string, error) {
	client := &http.Client{Timeout: httpTimeout}

	resp, err := client.Get(manifestURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxResponseSize)

	var m manifest
	if err := json.NewDecoder(limited).Decode(&m); err != nil {
		return "", err
	}
	if m.Latest == "" {
		return "", errors.New("manifest contains empty latest version")
	}
	latest := strings.TrimPrefix(m.Latest, "v")
	if _, err := semver.NewVersion(latest); err != nil {
		return "", fmt.Errorf("invalid version in manifest: %w", err)
	}
	return m.Latest, nil
}

// Check returns the latest published version and whether it is newer
// than currentVersion, using a 24h cache to avoid a network round trip
// on every invocation. Silent on any error: callers should treat a
// false hasUpdate as "nothing to report", never as a failure.
func Check(currentVersion string) (latestVersion string, hasUpdate bool) {
	if currentVersion == "" || currentVersion == "dev" {
		return "", false
	}

	c := loadCache()
	if c != nil && time.Since(c.LastCheck) < cacheDuration {
		return compareVersions(currentVersion, c.LatestVersion)
	}

	latest, err := fetchLatestVersion()
	if err != nil {
		if c != nil {
			return compareVersions(currentVersion, c.LatestVersion)
		}
		return "", false
	}

	saveCache(&cache{LastCheck: time.Now(), LatestVersion: latest})
	return compareVersions(currentVersion, latest)
}

func compareVersions(current, latest string) (string, bool) {
	if latest == "" {
		return "", false
	}
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")

	currentSemver, err := semver.NewVersion(current)
	if err != nil {
		return "", false
	}
	latestSemver, err := semver.NewVersion(latest)
	if err != nil {
		return "", false
	}
	if latestSemver.GreaterThan(currentSemver) {
		return "v" + latest, true
	}
	return "", false
}

// ClearCache removes the update cache file. Returns nil if it doesn't
// exist.
func ClearCache() error {
	path, err := getCachePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
