package provider

import "testing"

func TestDetect(t *testing.T) {
	cases := map[string]bool{
		".github/workflows/ci.yml": true,
		"azure-pipelines.yml":      true,
		"Jenkinsfile":              false,
		"README.md":                false,
	}
	for path, want := range cases {
		_, ok := Detect(path)
		if ok != want {
			t.Errorf("Detect(%q) ok = %v, want %v", path, ok, want)
		}
	}
}
