package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// DefaultBuildFile is looked up in the working directory when no file is given.
const DefaultBuildFile = "pypack.hcl"

var (
	ErrNoTargets      = errors.New("build file declares no build blocks")
	ErrTargetNotFound = errors.New("build target not found")
	ErrTargetRequired = errors.New("build file declares several targets; name one")
)

// Target is one named build block of a build file.
type Target struct {
	Name   string
	Config BuildConfig
}

type hclBuildFile struct {
	Builds []*hclBuild `hcl:"build,block"`
}

type hclBuild struct {
	Label string `hcl:"label,label"`

	ProjectDir  *string `hcl:"project_dir,optional"`
	EntryScript *string `hcl:"entry_script,optional"`
	Name        *string `hcl:"name,optional"`
	IconPath    *string `hcl:"icon_path,optional"`
	Backend     *string `hcl:"backend,optional"`

	Onefile  *bool `hcl:"onefile,optional"`
	Windowed *bool `hcl:"windowed,optional"`
	Clean    *bool `hcl:"clean,optional"`
	Console  *bool `hcl:"console,optional"`

	DirectoriesToCreate []string `hcl:"directories_to_create,optional"`
	FilesToInclude      []string `hcl:"files_to_include,optional"`
	DirsToInclude       []string `hcl:"dirs_to_include,optional"`
	HiddenImports       []string `hcl:"hidden_imports,optional"`
	ExtraArgs           []string `hcl:"extra_args,optional"`

	OutputDir   *string `hcl:"output_dir,optional"`
	PythonExe   *string `hcl:"python_exe,optional"`
	CreateSetup *bool   `hcl:"create_setup,optional"`

	Company *string           `hcl:"company,optional"`
	Version *string           `hcl:"version,optional"`
	Env     map[string]string `hcl:"env,optional"`
	EnvFile *string           `hcl:"env_file,optional"`

	Data []*hclData `hcl:"data,block"`
}

type hclData struct {
	Source string `hcl:"source"`
	Dest   string `hcl:"dest,optional"`
}

// LoadFile parses an HCL build file. Unset attributes keep Default() values
// and relative paths are resolved against the file's directory. Expressions
// can read the host environment as env.NAME and the file location as file_dir.
func LoadFile(path string) ([]Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve build file path: %w", err)
	}
	dir := filepath.Dir(abs)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(abs)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse build file %s: %w", path, diags)
	}

	var parsed hclBuildFile
	diags = gohcl.DecodeBody(file.Body, evalContext(dir), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode build file %s: %w", path, diags)
	}
	if len(parsed.Builds) == 0 {
		return nil, ErrNoTargets
	}

	targets := make([]Target, 0, len(parsed.Builds))
	for _, b := range parsed.Builds {
		targets = append(targets, Target{Name: b.Label, Config: b.toConfig(dir)})
	}
	return targets, nil
}

// SelectTarget picks the named target, or the only target when name is empty.
func SelectTarget(targets []Target, name string) (Target, error) {
	if name == "" {
		if len(targets) == 1 {
			return targets[0], nil
		}
		return Target{}, ErrTargetRequired
	}
	for _, t := range targets {
		if t.Name == name {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
}

func evalContext(dir string) *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":      cty.ObjectVal(env),
			"file_dir": cty.StringVal(dir),
		},
	}
}

func (b *hclBuild) toConfig(dir string) BuildConfig {
	c := Default()

	setString(&c.ProjectDir, b.ProjectDir)
	setString(&c.EntryScript, b.EntryScript)
	setString(&c.Name, b.Name)
	setString(&c.IconPath, b.IconPath)
	setString(&c.Backend, b.Backend)
	setString(&c.OutputDir, b.OutputDir)
	setString(&c.PythonExe, b.PythonExe)
	setString(&c.Company, b.Company)
	setString(&c.Version, b.Version)
	setString(&c.EnvFile, b.EnvFile)
	setBool(&c.Onefile, b.Onefile)
	setBool(&c.Windowed, b.Windowed)
	setBool(&c.Clean, b.Clean)
	setBool(&c.Console, b.Console)
	setBool(&c.CreateSetup, b.CreateSetup)

	c.DirectoriesToCreate = b.DirectoriesToCreate
	c.FilesToInclude = b.FilesToInclude
	c.DirsToInclude = b.DirsToInclude
	c.HiddenImports = b.HiddenImports
	c.ExtraArgs = b.ExtraArgs
	c.Env = b.Env
	for _, d := range b.Data {
		c.AddData = append(c.AddData, DataPair{Source: d.Source, Dest: d.Dest})
	}

	for _, p := range []*string{&c.ProjectDir, &c.EntryScript, &c.IconPath, &c.OutputDir, &c.EnvFile} {
		*p = relativeTo(dir, *p)
	}
	// python_exe may be a bare command name looked up on PATH.
	if strings.ContainsAny(c.PythonExe, `/\`) {
		c.PythonExe = relativeTo(dir, c.PythonExe)
	}
	for i := range c.AddData {
		c.AddData[i].Source = relativeTo(dir, c.AddData[i].Source)
	}
	for _, list := range [][]string{c.DirectoriesToCreate, c.FilesToInclude, c.DirsToInclude} {
		for i := range list {
			list[i] = relativeTo(dir, list[i])
		}
	}
	return c
}

func relativeTo(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	return filepath.Join(dir, p)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
