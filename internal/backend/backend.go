// Package backend translates a normalized BuildConfig into the command line
// of a packaging tool. Backends are stateless and never touch the filesystem
// beyond checking whether an included directory exists.
package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/pypackstudio/pypack/internal/config"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Platform is the target-platform policy the backends consult. It is decided
// when pypack is compiled; tests construct backends with an explicit value.
type Platform struct {
	Windows bool
}

// HostPlatform is the platform pypack was built for.
var HostPlatform = Platform{Windows: runtime.GOOS == "windows"}

// DataSeparator separates source and destination in PyInstaller's --add-data.
func (p Platform) DataSeparator() string {
	if p.Windows {
		return ";"
	}
	return ":"
}

// Backend builds the command line for one packaging tool. The first element
// of the result is the program, the rest its arguments; nothing is meant to
// pass through a shell.
type Backend interface {
	Name() string
	BuildCommand(cfg *config.BuildConfig) []string
}

// Registry returns the name-keyed backend table for a platform.
func Registry(p Platform) map[string]Backend {
	return map[string]Backend{
		config.BackendPyInstaller: NewPyInstaller(p),
		config.BackendNuitka:      NewNuitka(p),
	}
}

var backends = Registry(HostPlatform)

// Lookup returns the host backend registered under name.
func Lookup(name string) (Backend, bool) {
	b, ok := backends[name]
	return b, ok
}

// Names lists the registered backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command selects the backend named by cfg.Backend and builds its command.
func Command(cfg *config.BuildConfig) ([]string, error) {
	b, ok := Lookup(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
	return b.BuildCommand(cfg), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func baseName(path string) string {
	return filepath.Base(filepath.Clean(path))
}
