package execenv

import "fmt"

// New constructs a Backend of the requested kind. containerID/workDir
// are only consulted for TypeDocker.
func New(kind Type, containerID, workDir string) (Backend, error) {
	switch kind {
	case TypeLocal, "":
		return NewLocalBackend(), nil
	case TypeDocker:
		return NewDockerBackend(containerID, workDir)
	default:
		return nil, fmt.Errorf("execenv: unknown backend kind %q", kind)
	}
}
