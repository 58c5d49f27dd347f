package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// EnvPython forces the interpreter used when a config leaves python_exe unset.
const EnvPython = "PYPACK_PYTHON"

// DetectPython returns the interpreter a build runs with when none is
// configured: $PYPACK_PYTHON, the active virtualenv, then python3/python on
// PATH. When nothing resolves the bare command name is returned and the
// launch pre-check reports it.
func DetectPython() string {
	if forced := os.Getenv(EnvPython); forced != "" {
		return forced
	}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidate := filepath.Join(venv, "bin", "python")
		if runtime.GOOS == "windows" {
			candidate = filepath.Join(venv, "Scripts", "python.exe")
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	names := []string{"python3", "python"}
	if runtime.GOOS == "windows" {
		names = []string{"python.exe", "py.exe"}
	}
	for _, name := range names {
		if resolved, err := exec.LookPath(name); err == nil {
			return resolved
		}
	}
	return names[0]
}
