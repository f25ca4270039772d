package variable

import "testing"

func TestResolverPrecedence(t *testing.T) {
	r := New(nil)
	r.Set("GREETING", "from-config", SourceConfiguration)
	r.Set("GREETING", "from-env", SourceEnvironment)
	r.Set("GREETING", "from-secret", SourceSecret)
	r.Set("GREETING", "from-cli", SourceCliArgument)

	got, ok := r.Resolve("GREETING")
	if !ok || got != "from-cli" {
		t.Fatalf("Resolve() = %q, %v; want from-cli, true", got, ok)
	}

	src, ok := r.SourceOf("GREETING")
	if !ok || src != SourceCliArgument {
		t.Fatalf("SourceOf() = %v, %v; want SourceCliArgument, true", src, ok)
	}
}

func TestResolverUnknownReturnsUndefined(t *testing.T) {
	r := New(nil)
	if _, ok := r.Resolve("NOPE"); ok {
		t.Fatal("expected undefined variable to report ok=false, not panic or error")
	}
}

func TestResolverClearSource(t *testing.T) {
	r := New(nil)
	r.Set("X", "1", SourceCliArgument)
	r.ClearSource(SourceCliArgument)
	if _, ok := r.Resolve("X"); ok {
		t.Fatal("expected ClearSource to remove the variable")
	}
}

func TestResolverBuiltins(t *testing.T) {
	r := New(nil)
	for _, name := range []string{"PDK_VERSION", "PDK_WORKSPACE", "HOME", "PWD", "TIMESTAMP", "TIMESTAMP_UNIX"} {
		if !r.Contains(name) {
			t.Errorf("expected built-in %s to be defined", name)
		}
	}
}

func TestResolverLoadFromEnvironmentLoadsRawAndPrefixed(t *testing.T) {
	t.Setenv("PDK_TEST_RAW_VAR", "raw-value")
	t.Setenv("PDK_VAR_GREETING", "prefixed-value")

	r := New(nil)
	r.LoadFromEnvironment()

	if got, ok := r.Resolve("PDK_TEST_RAW_VAR"); !ok || got != "raw-value" {
		t.Fatalf("Resolve(PDK_TEST_RAW_VAR) = %q, %v; want raw-value, true", got, ok)
	}
	if got, ok := r.Resolve("GREETING"); !ok || got != "prefixed-value" {
		t.Fatalf("Resolve(GREETING) = %q, %v; want prefixed-value, true", got, ok)
	}
	if _, ok := r.Resolve("PDK_VAR_GREETING"); ok {
		t.Fatal("PDK_VAR_ prefix should be stripped, not loaded under its own name")
	}
}

type fakeSecretStore struct{ values map[string]string }

func (f *fakeSecretStore) GetAll() (map[string]string, error) { return f.values, nil }

type fakeMasker struct{ registered []string }

func (f *fakeMasker) RegisterSecret(v string) { f.registered = append(f.registered, v) }

func TestResolverLoadSecretsRegistersWithMasker(t *testing.T) {
	m := &fakeMasker{}
	r := New(m)
	store := &fakeSecretStore{values: map[string]string{"API_KEY": "abc-123"}}

	if err := r.LoadSecrets(store); err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}

	got, ok := r.Resolve("API_KEY")
	if !ok || got != "abc-123" {
		t.Fatalf("Resolve(API_KEY) = %q, %v", got, ok)
	}
	if len(m.registered) != 1 || m.registered[0] != "abc-123" {
		t.Fatalf("expected secret to be registered with masker, got %v", m.registered)
	}
}
