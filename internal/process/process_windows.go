//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func configureCommand(_ *exec.Cmd) {}

func killProcess(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// signaled cannot tell TerminateProcess from a normal exit on Windows, so a
// requested kill is taken at its word.
func signaled(_ *os.ProcessState) bool { return true }

func isExecutable(info os.FileInfo) bool {
	switch strings.ToLower(filepath.Ext(info.Name())) {
	case ".exe", ".com", ".bat", ".cmd":
		return true
	}
	return false
}
