// Package mask implements the masker port: an append-only set of secret
// strings that rewrites any text stream to redact them (spec §4.3, §5).
package mask

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultToken is substituted for every redacted occurrence.
const DefaultToken = "***"

// Masker is safe for concurrent RegisterSecret and Mask calls. Readers take
// an immutable snapshot of the registered set per scan, so a concurrent
// RegisterSecret never races a Mask in progress (spec §5 "Shared resources").
type Masker struct {
	mu      sync.Mutex
	secrets map[string]struct{}
	// snapshot is an immutable, sorted-by-length-desc slice rebuilt lazily
	// whenever the set changes; atomic.Value makes reads lock-free.
	snapshot atomic.Value // []string
	disabled bool
}

// New creates an empty Masker. If disableRedaction is true (the CLI's
// --no-redact flag), Mask becomes a no-op - used only for the raw-output
// escape hatch in spec §8 scenario S6.
func New(disableRedaction bool) *Masker {
	m := &Masker{secrets: make(map[string]struct{}), disabled: disableRedaction}
	m.snapshot.Store([]string{})
	return m
}

// RegisterSecret adds value to the set of strings to redact. Registering
// the empty string is a no-op: masking "" against every position would
// corrupt unrelated output.
func (m *Masker) RegisterSecret(value string) {
	if value == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[value]; ok {
		return
	}
	m.secrets[value] = struct{}{}
	m.rebuildSnapshot()
}

// rebuildSnapshot must be called with mu held.
func (m *Masker) rebuildSnapshot() {
	list := make([]string, 0, len(m.secrets))
	for s := range m.secrets {
		list = append(list, s)
	}
	// Longest-first so a secret that is a substring of another secret
	// doesn't partially mask the longer one first.
	sort.Slice(list, func(i, j int) bool { return len(list[i]) > len(list[j]) })
	m.snapshot.Store(list)
}

// Mask rewrites text, replacing every registered secret substring with
// DefaultToken. Safe to call concurrently with RegisterSecret.
func (m *Masker) Mask(text string) string {
	if m.disabled {
		return text
	}
	secrets, _ := m.snapshot.Load().([]string)
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, DefaultToken)
	}
	return text
}

// NameLooksSecret reports whether a variable/input name matches one of
// the patterns spec §4.5 says to auto-mask regardless of registration:
// SECRET|PASSWORD|TOKEN|API[_-]?KEY|PRIVATE, case-insensitive.
func NameLooksSecret(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range []string{"SECRET", "PASSWORD", "TOKEN", "PRIVATE"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	if strings.Contains(upper, "APIKEY") {
		return true
	}
	if strings.Contains(upper, "API_KEY") || strings.Contains(upper, "API-KEY") {
		return true
	}
	return false
}
