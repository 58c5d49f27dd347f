// Package project inspects a Python project directory and suggests packaging
// hints.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Hint kinds.
const (
	KindVirtualEnv   = "virtualenv"
	KindRequirements = "requirements"
	KindPyProject    = "pyproject"
	KindQtPlugins    = "qt-plugins"
)

var venvCandidates = []string{".venv", "venv", "env"}

// Hint is one piece of advice about the project.
type Hint struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Report is the result of Analyze.
type Report struct {
	ProjectDir string `json:"project_dir"`
	// Interpreter is the virtual environment's python, when one was found.
	Interpreter string `json:"interpreter,omitempty"`
	Hints       []Hint `json:"hints"`
}

// Analyze looks for a virtual environment and dependency manifests in dir.
// Only the first virtual environment found is reported.
func Analyze(dir string) (Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Report{}, err
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("%s is not a directory", dir)
	}

	r := Report{ProjectDir: dir}
	for _, cand := range venvCandidates {
		p := filepath.Join(dir, cand)
		if !exists(p) {
			continue
		}
		r.Hints = append(r.Hints, Hint{
			Kind:    KindVirtualEnv,
			Message: "virtual environment detected: " + cand,
			Path:    p,
		})
		if py := venvPython(p); exists(py) {
			r.Interpreter = py
		}
		break
	}

	if p := filepath.Join(dir, "requirements.txt"); exists(p) {
		r.Hints = append(r.Hints, Hint{
			Kind:    KindRequirements,
			Message: "requirements.txt detected; consider pinning versions",
			Path:    p,
		})
	}
	if p := filepath.Join(dir, "pyproject.toml"); exists(p) {
		r.Hints = append(r.Hints, Hint{
			Kind:    KindPyProject,
			Message: "pyproject.toml detected; install the project into the build interpreter first",
			Path:    p,
		})
	}

	r.Hints = append(r.Hints, Hint{
		Kind:    KindQtPlugins,
		Message: "for PySide6 apps, include the Qt plugins (styles, platforms) with --add-data if needed",
	})
	return r, nil
}

func venvPython(venv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venv, "Scripts", "python.exe")
	}
	return filepath.Join(venv, "bin", "python")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
