package execenv

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/docker/docker/client"
)

// DockerBackend runs the child inside an already-running container via
// `docker exec`, isolating the spawned program from the host without
// this package owning any container lifecycle (image build, volume
// bind, teardown) — a session using it assumes the container already
// exists.
type DockerBackend struct {
	cli         *client.Client
	containerID string
	workDir     string
}

// NewDockerBackend attaches to an already-running container by ID,
// executing new processes rooted at workDir inside it.
func NewDockerBackend(containerID, workDir string) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("execenv: docker client: %w", err)
	}
	if workDir == "" {
		workDir = "/workspace"
	}
	return &DockerBackend{cli: cli, containerID: containerID, workDir: workDir}, nil
}

// Command builds a `docker exec -it -w <workDir> <container> program
// args...` command; the PTY allocation comes from -it, matching how a
// session will wrap it with github.com/creack/pty.
func (b *DockerBackend) Command(ctx context.Context, program string, args []string, cwd string) (*exec.Cmd, error) {
	if b.containerID == "" {
		return nil, fmt.Errorf("execenv: container not set")
	}
	workDir := b.workDir
	if cwd != "" {
		workDir = cwd
	}

	dockerArgs := append([]string{"exec", "-it", "-w", workDir, b.containerID, program}, args...)
	return exec.CommandContext(ctx, "docker", dockerArgs...), nil
}

// Kind reports TypeDocker.
func (b *DockerBackend) Kind() Type { return TypeDocker }

// Close releases the underlying Docker API client.
func (b *DockerBackend) Close() error {
	return b.cli.Close()
}
