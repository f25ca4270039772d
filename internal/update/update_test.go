package update

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name          string
		current       string
		latest        string
		wantLatest    string
		wantHasUpdate bool
	}{
		{"newer version available", "1.0.0", "1.1.0", "v1.1.0", true},
		{"major version update", "1.9.9", "2.0.0", "v2.0.0", true},
		{"patch version update", "1.0.0", "1.0.1", "v1.0.1", true},
		{"same version", "1.0.0", "1.0.0", "", false},
		{"current is newer", "2.0.0", "1.0.0", "", false},
		{"with v prefix on current", "v1.0.0", "1.1.0", "v1.1.0", true},
		{"with v prefix on latest", "1.0.0", "v1.1.0", "v1.1.0", true},
		{"with v prefix on both", "v1.0.0", "v1.1.0", "v1.1.0", true},
		{"prerelease current vs stable latest", "1.0.0-beta.1", "1.0.0", "v1.0.0", true},
		{"stable current vs prerelease latest", "1.0.0", "1.1.0-beta.1", "v1.1.0-beta.1", true},
		{"prerelease vs newer prerelease", "1.0.0-alpha.1", "1.0.0-beta.1", "v1.0.0-beta.1", true},
		{"empty latest returns no update", "1.0.0", "", "", false},
		{"invalid current version", "not-a-version", "1.0.0", "", false},
		{"invalid latest version", "1.0.0", "not-a-version", "", false},
		{"both invalid", "abc", "xyz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLatest, gotHasUpdate := compareVersions(tt.current, tt.latest)
			if gotLatest != tt.wantLatest {
				t.Errorf("compareVersions(%q, %q) latestVersion = %q, want %q", tt.current, tt.latest, gotLatest, tt.wantLatest)
			}
			if gotHasUpdate != tt.wantHasUpdate {
				t.Errorf("compareVersions(%q, %q) hasUpdate = %v, want %v", tt.current, tt.latest, gotHasUpdate, tt.wantHasUpdate)
			}
		})
	}
}

func TestCheckSpecialVersions(t *testing.T) {
	tests := []struct {
		name    string
		current string
	}{
		{"empty version returns no update", ""},
		{"dev version returns no update", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLatest, gotHasUpdate := Check(tt.current)
			if gotLatest != "" || gotHasUpdate {
				t.Errorf("Check(%q) = (%q, %v), want (\"\", false)", tt.current, gotLatest, gotHasUpdate)
			}
		})
	}
}

func TestCheckWithMockServer(t *testing.T) {
	tests := []struct {
		name           string
		responseCode   int
		responseBody   string
		currentVersion string
		wantLatest     string
		wantHasUpdate  bool
	}{
		{"successful response with newer version", http.StatusOK, `{"latest": "2.0.0", "versions": ["2.0.0", "1.0.0"]}`, "1.0.0", "v2.0.0", true},
		{"successful response with same version", http.StatusOK, `{"latest": "1.0.0", "versions": ["1.0.0"]}`, "1.0.0", "", false},
		{"successful response with older version", http.StatusOK, `{"latest": "1.0.0", "versions": ["1.0.0"]}`, "2.0.0", "", false},
		{"server error returns no update", http.StatusInternalServerError, `{"error": "server error"}`, "1.0.0", "", false},
		{"not found error returns no update", http.StatusNotFound, `{"error": "not found"}`, "1.0.0", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv(PDKHomeEnv, tmpDir)

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.responseCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			withManifestURL(server.URL, func() {
				gotLatest, gotHasUpdate := Check(tt.currentVersion)
				if gotLatest != tt.wantLatest {
					t.Errorf("Check(%q) latestVersion = %q, want %q", tt.currentVersion, gotLatest, tt.wantLatest)
				}
				if gotHasUpdate != tt.wantHasUpdate {
					t.Errorf("Check(%q) hasUpdate = %v, want %v", tt.currentVersion, gotHasUpdate, tt.wantHasUpdate)
				}
			})
		})
	}
}

func TestCheckMalformedResponses(t *testing.T) {
	bodies := []string{
		`{"latest": "1.0.0"`,
		`{}`,
		`{"latest": "", "versions": ["1.0.0"]}`,
		`{"latest": null}`,
		`{"latest": 123}`,
		`["1.0.0", "2.0.0"]`,
		``,
		`{"latest": "1.0.`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv(PDKHomeEnv, tmpDir)

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			withManifestURL(server.URL, func() {
				if _, hasUpdate := Check("1.0.0"); hasUpdate {
					t.Errorf("Check() with malformed response %q should return hasUpdate=false", body)
				}
			})
		})
	}
}

func TestCheckCacheBehavior(t *testing.T) {
	t.Run("uses cached value within cache duration", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		writeCache(t, tmpDir, cache{LastCheck: time.Now(), LatestVersion: "2.0.0"})

		requests := 0
		server := respondingServer(&requests, `{"latest": "3.0.0"}`)
		defer server.Close()

		var gotLatest string
		var gotHasUpdate bool
		withManifestURL(server.URL, func() {
			gotLatest, gotHasUpdate = Check("1.0.0")
		})

		if requests != 0 {
			t.Errorf("expected 0 HTTP requests (cached), got %d", requests)
		}
		if gotLatest != "v2.0.0" || !gotHasUpdate {
			t.Errorf("Check() = (%q, %v), want (\"v2.0.0\", true)", gotLatest, gotHasUpdate)
		}
	})

	t.Run("fetches new value when cache expired", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		writeCache(t, tmpDir, cache{LastCheck: time.Now().Add(-25 * time.Hour), LatestVersion: "2.0.0"})

		requests := 0
		server := respondingServer(&requests, `{"latest": "3.0.0"}`)
		defer server.Close()

		var gotLatest string
		var gotHasUpdate bool
		withManifestURL(server.URL, func() {
			gotLatest, gotHasUpdate = Check("1.0.0")
		})

		if requests != 1 {
			t.Errorf("expected 1 HTTP request (cache expired), got %d", requests)
		}
		if gotLatest != "v3.0.0" || !gotHasUpdate {
			t.Errorf("Check() = (%q, %v), want (\"v3.0.0\", true)", gotLatest, gotHasUpdate)
		}
	})

	t.Run("fetches when no cache exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)

		requests := 0
		server := respondingServer(&requests, `{"latest": "2.0.0"}`)
		defer server.Close()

		var gotLatest string
		var gotHasUpdate bool
		withManifestURL(server.URL, func() {
			gotLatest, gotHasUpdate = Check("1.0.0")
		})

		if requests != 1 {
			t.Errorf("expected 1 HTTP request (no cache), got %d", requests)
		}
		if gotLatest != "v2.0.0" || !gotHasUpdate {
			t.Errorf("Check() = (%q, %v), want (\"v2.0.0\", true)", gotLatest, gotHasUpdate)
		}
	})

	t.Run("falls back to cache when fetch fails", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		writeCache(t, tmpDir, cache{LastCheck: time.Now().Add(-25 * time.Hour), LatestVersion: "2.0.0"})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		var gotLatest string
		var gotHasUpdate bool
		withManifestURL(server.URL, func() {
			gotLatest, gotHasUpdate = Check("1.0.0")
		})

		if gotLatest != "v2.0.0" || !gotHasUpdate {
			t.Errorf("Check() = (%q, %v), want fallback to (\"v2.0.0\", true)", gotLatest, gotHasUpdate)
		}
	})

	t.Run("saves cache after successful fetch", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)

		server := respondingServer(nil, `{"latest": "2.0.0"}`)
		defer server.Close()

		withManifestURL(server.URL, func() {
			_, _ = Check("1.0.0")
		})

		data, err := os.ReadFile(filepath.Join(tmpDir, cacheFile))
		if err != nil {
			t.Fatalf("reading cache file: %v", err)
		}
		var saved cache
		if err := json.Unmarshal(data, &saved); err != nil {
			t.Fatalf("unmarshaling cache: %v", err)
		}
		if saved.LatestVersion != "2.0.0" {
			t.Errorf("cache LatestVersion = %q, want %q", saved.LatestVersion, "2.0.0")
		}
		if time.Since(saved.LastCheck) > time.Minute {
			t.Error("cache LastCheck should be recent")
		}
	})
}

func TestCheckCacheMalformed(t *testing.T) {
	contents := []string{`{"lastCheck": "not-a-date"`, ``, `null`}

	for _, content := range contents {
		t.Run(content, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv(PDKHomeEnv, tmpDir)
			if err := os.WriteFile(filepath.Join(tmpDir, cacheFile), []byte(content), 0o600); err != nil {
				t.Fatalf("writing cache file: %v", err)
			}

			requests := 0
			server := respondingServer(&requests, `{"latest": "2.0.0"}`)
			defer server.Close()

			var gotLatest string
			var gotHasUpdate bool
			withManifestURL(server.URL, func() {
				gotLatest, gotHasUpdate = Check("1.0.0")
			})

			if requests != 1 {
				t.Errorf("expected 1 HTTP request (malformed cache), got %d", requests)
			}
			if gotLatest != "v2.0.0" || !gotHasUpdate {
				t.Errorf("Check() = (%q, %v), want (\"v2.0.0\", true)", gotLatest, gotHasUpdate)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	t.Run("removes existing cache file", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		path := filepath.Join(tmpDir, cacheFile)
		if err := os.WriteFile(path, []byte(`{"lastCheck": "2024-01-01T00:00:00Z"}`), 0o600); err != nil {
			t.Fatalf("writing cache file: %v", err)
		}

		if err := ClearCache(); err != nil {
			t.Fatalf("ClearCache() error = %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("cache file should be removed after ClearCache()")
		}
	})

	t.Run("returns nil when cache file does not exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		if err := ClearCache(); err != nil {
			t.Errorf("ClearCache() error = %v, want nil", err)
		}
	})
}

func TestFetchLatestVersion(t *testing.T) {
	tests := []struct {
		name         string
		responseCode int
		responseBody string
		wantVersion  string
		wantErr      bool
	}{
		{"successful fetch", http.StatusOK, `{"latest": "1.2.3", "versions": ["1.2.3"]}`, "1.2.3", false},
		{"version with v prefix", http.StatusOK, `{"latest": "v1.2.3", "versions": ["v1.2.3"]}`, "v1.2.3", false},
		{"server error", http.StatusInternalServerError, ``, "", true},
		{"empty latest in manifest", http.StatusOK, `{"latest": ""}`, "", true},
		{"invalid semver", http.StatusOK, `{"latest": "invalid"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.responseCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			var gotVersion string
			var err error
			withManifestURL(server.URL, func() {
				gotVersion, err = fetchLatestVersion()
			})

			if (err != nil) != tt.wantErr {
				t.Errorf("fetchLatestVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotVersion != tt.wantVersion {
				t.Errorf("fetchLatestVersion() = %q, want %q", gotVersion, tt.wantVersion)
			}
		})
	}
}

func TestLoadCache(t *testing.T) {
	t.Run("returns nil for non-existent cache", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		if c := loadCache(); c != nil {
			t.Errorf("loadCache() = %v, want nil", c)
		}
	})

	t.Run("returns nil for invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		if err := os.WriteFile(filepath.Join(tmpDir, cacheFile), []byte(`invalid json`), 0o600); err != nil {
			t.Fatalf("writing cache file: %v", err)
		}
		if c := loadCache(); c != nil {
			t.Errorf("loadCache() = %v, want nil for invalid JSON", c)
		}
	})

	t.Run("loads valid cache", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		writeCache(t, tmpDir, cache{LastCheck: time.Now().Truncate(time.Second), LatestVersion: "1.2.3"})

		c := loadCache()
		if c == nil {
			t.Fatal("loadCache() = nil, want non-nil")
		}
		if c.LatestVersion != "1.2.3" {
			t.Errorf("loadCache().LatestVersion = %q, want %q", c.LatestVersion, "1.2.3")
		}
	})
}

func TestSaveCache(t *testing.T) {
	t.Run("creates cache file", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(PDKHomeEnv, tmpDir)
		saveCache(&cache{LastCheck: time.Now(), LatestVersion: "1.2.3"})
		if _, err := os.Stat(filepath.Join(tmpDir, cacheFile)); os.IsNotExist(err) {
			t.Error("cache file should be created")
		}
	})

	t.Run("creates pdk home directory if needed", func(t *testing.T) {
		tmpDir := t.TempDir()
		nestedDir := filepath.Join(tmpDir, "nested", "pdk")
		t.Setenv(PDKHomeEnv, nestedDir)
		saveCache(&cache{LastCheck: time.Now(), LatestVersion: "1.2.3"})
		if _, err := os.Stat(filepath.Join(nestedDir, cacheFile)); os.IsNotExist(err) {
			t.Error("cache file should be created in nested directory")
		}
	})
}

func TestConstants(t *testing.T) {
	if cacheDuration != 24*time.Hour {
		t.Errorf("cacheDuration = %v, want 24h", cacheDuration)
	}
	if httpTimeout != 5*time.Second {
		t.Errorf("httpTimeout = %v, want 5s", httpTimeout)
	}
	if maxResponseSize != 64*1024 {
		t.Errorf("maxResponseSize = %d, want 65536", maxResponseSize)
	}
	if cacheFile != "update-check.json" {
		t.Errorf("cacheFile = %q, want %q", cacheFile, "update-check.json")
	}
}

func TestCheckNetworkError(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(PDKHomeEnv, tmpDir)

	withManifestURL("http://localhost:1", func() {
		gotLatest, gotHasUpdate := Check("1.0.0")
		if gotLatest != "" || gotHasUpdate {
			t.Errorf("Check() with network error = (%q, %v), want (\"\", false)", gotLatest, gotHasUpdate)
		}
	})
}

func TestCheckOversizedResponseIsRejected(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(PDKHomeEnv, tmpDir)

	body := `{"latest": "1.0.0", "versions": [`
	for i := 0; i < 10000; i++ {
		if i > 0 {
			body += ","
		}
		body += `"1.0.0"`
	}
	body += `]}`

	server := respondingServer(nil, body)
	defer server.Close()

	withManifestURL(server.URL, func() {
		if _, hasUpdate := Check("0.9.0"); hasUpdate {
			t.Error("Check() with oversized response should return hasUpdate=false")
		}
	})
}

func TestCIEnvVarsSuppressCheck(t *testing.T) {
	for _, name := range ciEnvVars {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "1")
			if !Suppressed() {
				t.Errorf("Suppressed() = false with %s set, want true", name)
			}
		})
	}
}

func withManifestURL(url string, fn func()) {
	original := manifestURL
	manifestURL = url
	defer func() { manifestURL = original }()
	fn()
}

func writeCache(t *testing.T, dir string, c cache) {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshaling cache: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, cacheFile), data, 0o600); err != nil {
		t.Fatalf("writing cache file: %v", err)
	}
}

func respondingServer(requests *int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests != nil {
			*requests++
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}
