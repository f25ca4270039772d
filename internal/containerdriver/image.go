package containerdriver

import "strings"

// defaultImages maps the handful of hosted-runner labels this engine
// recognizes (spec §3 Job.RunnerLabel) to a default container image,
// used when a job's RunnerLabel doesn't already look like an image
// reference (i.e. has no registry-style "/" or tag-style ":").
var defaultImages = map[string]string{
	"ubuntu-latest": "ubuntu:24.04",
	"ubuntu-22.04":  "ubuntu:22.04",
	"ubuntu-20.04":  "ubuntu:20.04",
	"windows-latest": "mcr.microsoft.com/windows/servercore:ltsc2022",
	"macos-latest":  "ubuntu:24.04", // no macOS container runtime; closest available default
}

// fallbackImage is used when RunnerLabel is empty or unrecognized and
// doesn't already look like an explicit image reference.
const fallbackImage = "ubuntu:24.04"

// ImageForLabel resolves a job's runner label to the container image the
// docker driver should start. A label that already looks like an image
// reference (contains "/" or ":") is used as-is, so a pipeline authored
// with `runs-on: myregistry.example.com/ci-base:1.2` works unchanged.
func ImageForLabel(label string) string {
	if label == "" {
		return fallbackImage
	}
	if strings.ContainsAny(label, "/:") {
		return label
	}
	if image, ok := defaultImages[label]; ok {
		return image
	}
	return fallbackImage
}
