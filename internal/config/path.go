package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// NormPath returns the canonical form of p: "~" expanded, absolute, with
// symlinks resolved. Components that do not exist yet are kept as given on
// top of the resolved existing prefix, so the result is a fixed point.
func NormPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	expanded, err := expandUser(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("absolute path of %s: %w", p, err)
	}
	return resolveExisting(abs)
}

func expandUser(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

func resolveExisting(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}

	parent := filepath.Dir(p)
	if parent == p {
		return p, nil
	}
	base, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, filepath.Base(p)), nil
}
