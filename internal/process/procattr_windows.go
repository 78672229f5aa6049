//go:build windows

package process

import (
	"errors"
	"os/exec"
)

func setProcAttr(*exec.Cmd) {}

// Windows has no SIGTERM for console children; both paths end the process.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
