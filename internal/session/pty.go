package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/tapehouse/controltape/internal/execenv"
)

// childPTY owns a spawned child process and its pseudo-terminal.
type childPTY struct {
	cmd *exec.Cmd
	pty *os.File

	mu     sync.Mutex
	closed bool
}

// spawnChild starts program with args under a PTY sized rows x cols,
// in cwd, with env (nil means inherit the controller's environment).
// backend builds the underlying *exec.Cmd; a nil backend spawns
// directly on the local machine.
func spawnChild(program string, args []string, cwd string, env []string, rows, cols int, backend execenv.Backend) (*childPTY, error) {
	var cmd *exec.Cmd
	if backend != nil {
		c, err := backend.Command(context.Background(), program, args, cwd)
		if err != nil {
			return nil, fmt.Errorf("session: spawn %s: %w", program, err)
		}
		cmd = c
	} else {
		cmd = exec.Command(program, args...)
		cmd.Dir = cwd
	}
	if env != nil {
		cmd.Env = env
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("session: spawn %s: %w", program, err)
	}
	c := &childPTY{cmd: cmd, pty: ptmx}
	if rows > 0 && cols > 0 {
		c.Resize(rows, cols)
	}
	return c, nil
}

func (c *childPTY) Read(buf []byte) (int, error) {
	return c.pty.Read(buf)
}

func (c *childPTY) Write(data []byte) (int, error) {
	return c.pty.Write(data)
}

func (c *childPTY) Resize(rows, cols int) error {
	return pty.Setsize(c.pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close terminates the child (SIGTERM, then the caller is expected to
// escalate to SIGKILL after a grace period via Kill) and releases the
// PTY file descriptor.
func (c *childPTY) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.cmd.Process != nil {
		syscall.Kill(-c.cmd.Process.Pid, syscall.SIGTERM)
	}
	return c.pty.Close()
}

// Kill sends SIGKILL to the child's process group.
func (c *childPTY) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-c.cmd.Process.Pid, syscall.SIGKILL)
}

func (c *childPTY) Wait() error {
	return c.cmd.Wait()
}

func (c *childPTY) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
