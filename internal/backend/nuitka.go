package backend

import (
	"github.com/pypackstudio/pypack/internal/config"
)

// Nuitka drives `python -m nuitka --standalone`. Console, icon and version
// resource flags only exist for Windows targets and are omitted elsewhere.
type Nuitka struct {
	platform Platform
}

func NewNuitka(p Platform) *Nuitka {
	return &Nuitka{platform: p}
}

func (b *Nuitka) Name() string { return config.BackendNuitka }

func (b *Nuitka) BuildCommand(cfg *config.BuildConfig) []string {
	windows := b.platform.Windows

	cmd := []string{cfg.PythonExe, "-m", "nuitka", "--standalone"}
	if cfg.Onefile {
		cmd = append(cmd, "--onefile")
	}
	if cfg.Windowed && !cfg.Console && windows {
		cmd = append(cmd, "--windows-disable-console")
	}
	if cfg.IconPath != "" && windows {
		cmd = append(cmd, "--windows-icon-from-ico", cfg.IconPath)
	}
	if cfg.OutputDir != "" {
		cmd = append(cmd, "--output-dir", cfg.OutputDir)
	}

	for _, pair := range cfg.AddData {
		if pair.Source == "" {
			continue
		}
		dest := pair.Dest
		if dest == "" {
			dest = baseName(pair.Source)
		}
		cmd = append(cmd, "--include-data-file="+pair.Source+"="+dest)
	}
	for _, file := range cfg.FilesToInclude {
		if file == "" {
			continue
		}
		cmd = append(cmd, "--include-data-file="+file+"="+baseName(file))
	}
	for _, dir := range cfg.DirsToInclude {
		if dir == "" || !isDir(dir) {
			continue
		}
		cmd = append(cmd, "--include-data-dir="+dir+"="+baseName(dir))
	}

	for _, module := range cfg.HiddenImports {
		cmd = append(cmd, "--include-module", module)
	}

	if cfg.Name != "" {
		cmd = append(cmd, "--product-name", cfg.Name, "--company-name", cfg.CompanyName())
		if windows {
			version := cfg.ProductVersion()
			cmd = append(cmd, "--file-version", version, "--product-version", version)
		}
	}

	cmd = append(cmd, cfg.ExtraArgs...)
	return append(cmd, cfg.EntryScript)
}
