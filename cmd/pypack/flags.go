package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/pypackstudio/pypack/internal/config"
	"github.com/pypackstudio/pypack/internal/profile"
)

// configFlags holds the BuildConfig flags shared by build, command, validate
// and profile save/create. Only flags the user set override the base config.
type configFlags struct {
	file        string
	profileName string

	entry, projectDir, name, icon, backend string
	onefile, windowed, clean, console      bool

	addData, includeFiles, includeDirs, copyItems, hiddenImports []string

	extraArgs   string
	outputDir   string
	python      string
	createSetup bool

	company, appVersion string
	env                 map[string]string
	envFile             string
}

func (f *configFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "file", "f", "", "HCL build file (targets are selected by the first argument)")
	fs.StringVar(&f.profileName, "profile", "", "Start from a saved profile")

	fs.StringVar(&f.entry, "entry", "", "Entry script")
	fs.StringVar(&f.projectDir, "project-dir", "", "Project directory (default: the entry script's directory)")
	fs.StringVar(&f.name, "name", config.DefaultName, "Application name")
	fs.StringVar(&f.icon, "icon", "", "Application icon")
	fs.StringVar(&f.backend, "backend", config.BackendPyInstaller, "Packaging backend ("+strings.Join(config.SupportedBackends(), ", ")+")")

	fs.BoolVar(&f.onefile, "onefile", true, "Produce a single executable")
	fs.BoolVar(&f.windowed, "windowed", true, "Hide the console window (GUI apps)")
	fs.BoolVar(&f.clean, "clean", true, "Clean the tool's cache before building")
	fs.BoolVar(&f.console, "console", false, "Keep the console window; overrides --windowed")

	fs.StringArrayVar(&f.addData, "add-data", nil, "Data file as SRC or SRC=DEST (repeatable)")
	fs.StringArrayVar(&f.includeFiles, "include-file", nil, "File to ship at the package root (repeatable)")
	fs.StringArrayVar(&f.includeDirs, "include-dir", nil, "Directory to ship under its own name (repeatable)")
	fs.StringArrayVar(&f.copyItems, "copy", nil, "File or directory copied next to the built app (repeatable)")
	fs.StringArrayVar(&f.hiddenImports, "hidden-import", nil, "Module the tool cannot discover (repeatable)")

	fs.StringVar(&f.extraArgs, "extra-args", "", "Extra tool arguments as a shell-style string")
	fs.StringVar(&f.outputDir, "output-dir", "", "Output directory (default: <project>/dist)")
	fs.StringVar(&f.python, "python", "", "Python interpreter (default: detected)")
	fs.BoolVar(&f.createSetup, "create-setup", false, "Build an installer folder after a successful build")

	fs.StringVar(&f.company, "company", "", "Company name for product metadata")
	fs.StringVar(&f.appVersion, "app-version", "", "Product version for metadata")
	fs.StringToStringVar(&f.env, "env", nil, "Environment overlay KEY=VALUE (repeatable)")
	fs.StringVar(&f.envFile, "env-file", "", "dotenv file overlaid on the build environment")
}

// resolve builds the BuildConfig: the build file target or profile (or the
// defaults), then every flag the user set on top. Without --file or
// --profile, a pypack.hcl in the working directory is used when present.
func (f *configFlags) resolve(cmd *cobra.Command, target string) (config.BuildConfig, error) {
	cfg := config.Default()

	file := f.file
	if file == "" && f.profileName == "" {
		if info, err := os.Stat(config.DefaultBuildFile); err == nil && !info.IsDir() {
			file = config.DefaultBuildFile
		}
	}

	switch {
	case file != "" && f.profileName != "":
		return config.BuildConfig{}, fmt.Errorf("--file and --profile are mutually exclusive")

	case file != "":
		targets, err := config.LoadFile(file)
		if err != nil {
			return config.BuildConfig{}, err
		}
		t, err := config.SelectTarget(targets, target)
		if err != nil {
			return config.BuildConfig{}, err
		}
		logger.Debug("using build file target", "file", file, "target", t.Name)
		cfg = t.Config

	case f.profileName != "":
		store, err := profile.Open(profileStorePath, logger)
		if err != nil {
			return config.BuildConfig{}, err
		}
		if cfg, err = store.Get(f.profileName); err != nil {
			return config.BuildConfig{}, err
		}
	}

	if err := f.apply(cmd, &cfg); err != nil {
		return config.BuildConfig{}, err
	}
	return cfg, nil
}

func (f *configFlags) apply(cmd *cobra.Command, cfg *config.BuildConfig) error {
	changed := cmd.Flags().Changed

	if changed("entry") {
		cfg.EntryScript = f.entry
	}
	if changed("project-dir") {
		cfg.ProjectDir = f.projectDir
	}
	if changed("name") {
		cfg.Name = f.name
	}
	if changed("icon") {
		cfg.IconPath = f.icon
	}
	if changed("backend") {
		cfg.Backend = f.backend
	}
	if changed("onefile") {
		cfg.Onefile = f.onefile
	}
	if changed("windowed") {
		cfg.Windowed = f.windowed
	}
	if changed("clean") {
		cfg.Clean = f.clean
	}
	if changed("console") {
		cfg.Console = f.console
	}
	if changed("add-data") {
		cfg.AddData = nil
		for _, v := range f.addData {
			cfg.AddData = append(cfg.AddData, parseDataPair(v))
		}
	}
	if changed("include-file") {
		cfg.FilesToInclude = f.includeFiles
	}
	if changed("include-dir") {
		cfg.DirsToInclude = f.includeDirs
	}
	if changed("copy") {
		cfg.DirectoriesToCreate = f.copyItems
	}
	if changed("hidden-import") {
		cfg.HiddenImports = f.hiddenImports
	}
	if changed("extra-args") {
		args, err := shellquote.Split(f.extraArgs)
		if err != nil {
			return fmt.Errorf("parse --extra-args: %w", err)
		}
		cfg.ExtraArgs = args
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("python") {
		cfg.PythonExe = f.python
	}
	if changed("create-setup") {
		cfg.CreateSetup = f.createSetup
	}
	if changed("company") {
		cfg.Company = f.company
	}
	if changed("app-version") {
		cfg.Version = f.appVersion
	}
	if changed("env") {
		if cfg.Env == nil {
			cfg.Env = map[string]string{}
		}
		for k, v := range f.env {
			cfg.Env[k] = v
		}
	}
	if changed("env-file") {
		cfg.EnvFile = f.envFile
	}
	return nil
}

// parseDataPair reads SRC or SRC=DEST. The last '=' splits, so sources may
// contain '='.
func parseDataPair(v string) config.DataPair {
	if i := strings.LastIndex(v, "="); i > 0 {
		return config.DataPair{Source: v[:i], Dest: v[i+1:]}
	}
	return config.DataPair{Source: v}
}

// targetArg returns the optional build-file target argument.
func targetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
