package preflight

import "os/exec"

// MockExecCommand replaces the exec.Command() wrapper and returns a function
// that can be called to restore the original.
func MockExecCommand(mock func(name string, arg ...string) *exec.Cmd) (restore func()) {
	original := execCommand
	execCommand = mock
	return func() {
		execCommand = original
	}
}

// MockLookPath replaces the exec.LookPath() wrapper and returns a function
// that can be called to restore the original.
func MockLookPath(mock func(file string) (string, error)) (restore func()) {
	original := lookPath
	lookPath = mock
	return func() {
		lookPath = original
	}
}
