package backend

import (
	"github.com/pypackstudio/pypack/internal/config"
)

// PyInstaller drives `python -m PyInstaller`.
type PyInstaller struct {
	platform Platform
}

func NewPyInstaller(p Platform) *PyInstaller {
	return &PyInstaller{platform: p}
}

func (b *PyInstaller) Name() string { return config.BackendPyInstaller }

func (b *PyInstaller) BuildCommand(cfg *config.BuildConfig) []string {
	sep := b.platform.DataSeparator()

	cmd := []string{cfg.PythonExe, "-m", "PyInstaller"}
	if cfg.Clean {
		cmd = append(cmd, "--clean")
	}
	cmd = append(cmd, "--noconfirm", "--name="+cfg.Name)
	if cfg.Onefile {
		cmd = append(cmd, "--onefile")
	}
	if cfg.Windowed && !cfg.Console {
		cmd = append(cmd, "--windowed")
	}
	if cfg.IconPath != "" {
		cmd = append(cmd, "--icon="+cfg.IconPath)
	}
	if cfg.OutputDir != "" {
		cmd = append(cmd, "--distpath", cfg.OutputDir)
	}

	for _, pair := range cfg.AddData {
		if pair.Source == "" {
			continue
		}
		dest := pair.Dest
		if dest == "" {
			dest = "."
		}
		cmd = append(cmd, "--add-data", pair.Source+sep+dest)
	}
	for _, file := range cfg.FilesToInclude {
		if file == "" {
			continue
		}
		cmd = append(cmd, "--add-data", file+sep+".")
	}
	for _, dir := range cfg.DirsToInclude {
		if dir == "" || !isDir(dir) {
			continue
		}
		cmd = append(cmd, "--add-data", dir+sep+baseName(dir))
	}

	for _, module := range cfg.HiddenImports {
		cmd = append(cmd, "--hidden-import", module)
	}
	cmd = append(cmd, cfg.ExtraArgs...)
	return append(cmd, cfg.EntryScript)
}
