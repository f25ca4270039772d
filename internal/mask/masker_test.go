package mask

import "testing"

func TestMaskRedactsRegisteredSecret(t *testing.T) {
	m := New(false)
	m.RegisterSecret("abc-123-xyz")

	got := m.Mask("my key is abc-123-xyz and more")
	want := "my key is *** and more"
	if got != want {
		t.Fatalf("Mask() = %q, want %q", got, want)
	}
}

func TestMaskNoRedactFlagDisablesMasking(t *testing.T) {
	m := New(true)
	m.RegisterSecret("abc-123-xyz")

	got := m.Mask("my key is abc-123-xyz and more")
	want := "my key is abc-123-xyz and more"
	if got != want {
		t.Fatalf("Mask() with disabled masker = %q, want raw passthrough %q", got, want)
	}
}

func TestMaskLongestSecretFirst(t *testing.T) {
	m := New(false)
	m.RegisterSecret("abc")
	m.RegisterSecret("abcdef")

	got := m.Mask("value=abcdef")
	want := "value=***"
	if got != want {
		t.Fatalf("Mask() = %q, want %q (longer secret should be masked whole, not leave \"def\")", got, want)
	}
}

func TestRegisterEmptySecretNoOp(t *testing.T) {
	m := New(false)
	m.RegisterSecret("")

	got := m.Mask("hello world")
	if got != "hello world" {
		t.Fatalf("registering empty secret corrupted unrelated text: %q", got)
	}
}

func TestNameLooksSecret(t *testing.T) {
	cases := map[string]bool{
		"API_KEY":     true,
		"apikey":      true,
		"MY_PASSWORD": true,
		"GH_TOKEN":    true,
		"PRIVATE_KEY": true,
		"WORKSPACE":   false,
		"PDK_JOB":     false,
	}
	for name, want := range cases {
		if got := NameLooksSecret(name); got != want {
			t.Errorf("NameLooksSecret(%q) = %v, want %v", name, got, want)
		}
	}
}
