// Package containerdriver implements the ports.ContainerDriver port by
// shelling out to the docker CLI, the same exec.CommandContext-based
// approach this engine's Docker-availability check already uses rather
// than pulling in the full Docker Engine API client.
package containerdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pdk-cli/pdk/internal/ports"
)

const dockerCheckTimeout = 5 * time.Second

var (
	ErrDockerNotInstalled = errors.New("docker is not installed")
	ErrDockerNotRunning   = errors.New("docker daemon is not running")
	ErrDockerPermission   = errors.New("permission denied accessing docker")
)

// Driver runs steps inside containers started via the docker CLI.
type Driver struct{}

func New() *Driver { return &Driver{} }

// IsHealthy mirrors this engine's IsAvailable Docker check, repurposed
// to return a ports.ContainerHealth instead of a bare error.
func (d *Driver) IsHealthy(ctx context.Context) ports.ContainerHealth {
	if _, err := exec.LookPath("docker"); err != nil {
		return ports.ContainerHealth{Available: false, Err: ErrDockerNotInstalled}
	}

	checkCtx, cancel := context.WithTimeout(ctx, dockerCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "docker", "version", "--format", "{{.Server.Version}}/{{.Server.Os}}")
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := strings.ToLower(string(output))
		switch {
		case strings.Contains(outputStr, "permission denied"):
			return ports.ContainerHealth{Available: false, Err: fmt.Errorf("%w: try adding the current user to the docker group", ErrDockerPermission)}
		case strings.Contains(outputStr, "cannot connect"),
			strings.Contains(outputStr, "is the docker daemon running"),
			strings.Contains(outputStr, "connection refused"):
			return ports.ContainerHealth{Available: false, Err: fmt.Errorf("%w: start Docker Desktop or run 'systemctl start docker'", ErrDockerNotRunning)}
		}
		if checkCtx.Err() == context.DeadlineExceeded {
			return ports.ContainerHealth{Available: false, Err: fmt.Errorf("%w: docker daemon not responding within %v", ErrDockerNotRunning, dockerCheckTimeout)}
		}
		return ports.ContainerHealth{Available: false, Err: fmt.Errorf("docker check failed: %w", err)}
	}

	parts := strings.SplitN(strings.TrimSpace(string(output)), "/", 2)
	health := ports.ContainerHealth{Available: true}
	if len(parts) == 2 {
		health.Version, health.Platform = parts[0], parts[1]
	}
	return health
}

// StartContainer starts image detached with env injected, returning the
// container id.
func (d *Driver) StartContainer(ctx context.Context, image string, env map[string]string) (string, error) {
	args := []string{"run", "-d", "--rm"}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, image, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...) //nolint:gosec // image/env come from the validated pipeline, not untrusted input
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("starting container %q: %w: %s", image, err, stderr.String())
	}
	return strings.TrimSpace(out.String()), nil
}

// Execute runs command inside the container via 'docker exec', under the
// given shell.
func (d *Driver) Execute(ctx context.Context, id string, command []string, shell string) (int, error) {
	if shell == "" {
		shell = "sh"
	}
	args := append([]string{"exec", id, shell, "-c"}, strings.Join(command, " "))
	cmd := exec.CommandContext(ctx, "docker", args...) //nolint:gosec // id is our own container, command is the pipeline's own script
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing in container %q: %w", id, err)
	}
	return 0, nil
}

// CollectOutput returns the container's captured logs.
func (d *Driver) CollectOutput(ctx context.Context, id string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "logs", id) //nolint:gosec // id is our own container
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("collecting logs for %q: %w", id, err)
	}
	return string(out), nil
}

// Stop stops and (since StartContainer used --rm) removes the container.
func (d *Driver) Stop(ctx context.Context, id string) error {
	cmd := exec.CommandContext(ctx, "docker", "stop", "-t", strconv.Itoa(int(gracefulStopSeconds.Seconds())), id) //nolint:gosec // id is our own container
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("stopping container %q: %w", id, err)
	}
	return nil
}

var gracefulStopSeconds = 5 * time.Second
