package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

const (
	BackendPyInstaller = "pyinstaller"
	BackendNuitka      = "nuitka"

	DefaultName    = "MyApp"
	DefaultCompany = "XenSoft"
	DefaultVersion = "1.0.0"
)

var supportedBackends = []string{BackendPyInstaller, BackendNuitka}

// SupportedBackends returns the backend names a BuildConfig may select.
func SupportedBackends() []string {
	return slices.Clone(supportedBackends)
}

// IsSupportedBackend reports whether name is a known backend.
func IsSupportedBackend(name string) bool {
	return slices.Contains(supportedBackends, name)
}

// DataPair maps a file on disk to a destination inside the package.
// An empty Dest means the package root.
type DataPair struct {
	Source string
	Dest   string
}

// MarshalJSON encodes the pair as a two-element array, the profile snapshot format.
func (p DataPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Source, p.Dest})
}

// UnmarshalJSON accepts ["src", "dst"] as well as {"source": .., "dest": ..}.
func (p *DataPair) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) == 0 || len(pair) > 2 {
			return fmt.Errorf("data pair must have 1 or 2 elements, got %d", len(pair))
		}
		p.Source = pair[0]
		p.Dest = ""
		if len(pair) == 2 {
			p.Dest = pair[1]
		}
		return nil
	}

	var obj struct {
		Source string `json:"source"`
		Dest   string `json:"dest"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode data pair: %w", err)
	}
	p.Source, p.Dest = obj.Source, obj.Dest
	return nil
}

// BuildConfig holds every option of one packaging invocation. It is built
// fresh from user input for each action; profiles are JSON snapshots of it.
type BuildConfig struct {
	ProjectDir  string `json:"project_dir"`
	EntryScript string `json:"entry_script"`
	Name        string `json:"name"`
	IconPath    string `json:"icon_path"`
	Backend     string `json:"backend"`

	Onefile  bool `json:"onefile"`
	Windowed bool `json:"windowed"`
	Clean    bool `json:"clean"`
	Console  bool `json:"console"`

	AddData             []DataPair `json:"add_data"`
	DirectoriesToCreate []string   `json:"directories_to_create"`
	FilesToInclude      []string   `json:"files_to_include"`
	DirsToInclude       []string   `json:"dirs_to_include"`
	HiddenImports       []string   `json:"hidden_imports"`
	ExtraArgs           []string   `json:"extra_args"`

	OutputDir   string `json:"output_dir"`
	PythonExe   string `json:"python_exe"`
	CreateSetup bool   `json:"create_setup"`

	Company string            `json:"company,omitempty"`
	Version string            `json:"version,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	EnvFile string            `json:"env_file,omitempty"`
}

// Default returns the configuration a new build starts from.
func Default() BuildConfig {
	return BuildConfig{
		Name:     DefaultName,
		Backend:  BackendPyInstaller,
		Onefile:  true,
		Windowed: true,
		Clean:    true,
	}
}

// Validate checks the fields a build cannot start without. Rules are
// evaluated in order and the first failing one is reported.
func (c *BuildConfig) Validate() (bool, string) {
	if c.EntryScript == "" {
		return false, "entry script is required"
	}
	if _, err := os.Stat(c.EntryScript); err != nil {
		return false, fmt.Sprintf("entry script not found: %s", c.EntryScript)
	}
	if c.Name == "" {
		return false, "application name is required"
	}
	if c.IconPath != "" {
		if _, err := os.Stat(c.IconPath); err != nil {
			return false, fmt.Sprintf("icon not found: %s", c.IconPath)
		}
	}
	if !IsSupportedBackend(c.Backend) {
		return false, fmt.Sprintf("unsupported backend: %s", c.Backend)
	}
	return true, ""
}

// Normalized returns a copy with defaults applied and every path field made
// absolute, home-expanded and symlink-resolved. Empty paths stay empty,
// except ProjectDir: it falls back to the entry script's directory, which is
// the working directory when EntryScript is empty too.
// Data destinations are package-internal and left as they are.
func (c BuildConfig) Normalized() (BuildConfig, error) {
	n := c.Clone()

	projectDir := c.ProjectDir
	if projectDir == "" {
		projectDir = filepath.Dir(c.EntryScript)
	}

	var err error
	if n.ProjectDir, err = NormPath(projectDir); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize project_dir: %w", err)
	}
	if n.EntryScript, err = NormPath(c.EntryScript); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize entry_script: %w", err)
	}
	if n.IconPath, err = NormPath(c.IconPath); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize icon_path: %w", err)
	}
	if n.EnvFile, err = NormPath(c.EnvFile); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize env_file: %w", err)
	}

	outputDir := c.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(n.ProjectDir, "dist")
	}
	if n.OutputDir, err = NormPath(outputDir); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize output_dir: %w", err)
	}

	pythonExe := c.PythonExe
	if pythonExe == "" {
		pythonExe = DetectPython()
	}
	if !strings.ContainsAny(pythonExe, `/\`) {
		if resolved, lookErr := exec.LookPath(pythonExe); lookErr == nil {
			pythonExe = resolved
		}
	}
	if n.PythonExe, err = NormPath(pythonExe); err != nil {
		return BuildConfig{}, fmt.Errorf("normalize python_exe: %w", err)
	}

	for i, pair := range n.AddData {
		if n.AddData[i].Source, err = NormPath(pair.Source); err != nil {
			return BuildConfig{}, fmt.Errorf("normalize add_data source: %w", err)
		}
	}
	for _, list := range [][]string{n.FilesToInclude, n.DirsToInclude, n.DirectoriesToCreate} {
		for i, p := range list {
			if list[i], err = NormPath(p); err != nil {
				return BuildConfig{}, fmt.Errorf("normalize %s: %w", p, err)
			}
		}
	}

	return n, nil
}

// CompanyName returns the company used for product metadata.
func (c *BuildConfig) CompanyName() string {
	if c.Company == "" {
		return DefaultCompany
	}
	return c.Company
}

// ProductVersion returns the version used for product metadata.
func (c *BuildConfig) ProductVersion() string {
	if c.Version == "" {
		return DefaultVersion
	}
	return c.Version
}

// Clone returns a deep copy of c.
func (c BuildConfig) Clone() BuildConfig {
	n := c
	n.AddData = slices.Clone(c.AddData)
	n.DirectoriesToCreate = slices.Clone(c.DirectoriesToCreate)
	n.FilesToInclude = slices.Clone(c.FilesToInclude)
	n.DirsToInclude = slices.Clone(c.DirsToInclude)
	n.HiddenImports = slices.Clone(c.HiddenImports)
	n.ExtraArgs = slices.Clone(c.ExtraArgs)
	n.Env = maps.Clone(c.Env)
	return n
}
