package process

import (
	"fmt"
	"os"
)

// CheckExecutable reports whether path names a launchable program file.
// Callers use it to surface a missing interpreter before a worker is built.
func CheckExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty program path", ErrLaunchFailed)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrLaunchFailed, path)
	}
	if !isExecutable(info) {
		return fmt.Errorf("%w: %s is not executable", ErrLaunchFailed, path)
	}
	return nil
}
