package execenv

import (
	"context"
	"os/exec"
)

// LocalBackend runs the child directly via os/exec, the default for
// every session unless a Docker backend is configured.
type LocalBackend struct{}

// NewLocalBackend returns a ready-to-use LocalBackend.
func NewLocalBackend() *LocalBackend { return &LocalBackend{} }

// Command builds a plain exec.CommandContext rooted at cwd.
func (b *LocalBackend) Command(ctx context.Context, program string, args []string, cwd string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = cwd
	return cmd, nil
}

// Kind reports TypeLocal.
func (b *LocalBackend) Kind() Type { return TypeLocal }
