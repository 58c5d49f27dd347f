package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates a file with placeholder content and returns its path.
func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("print('hi')\n"), 0o644))
	return path
}

func validConfig(t *testing.T) BuildConfig {
	t.Helper()
	dir := t.TempDir()
	c := Default()
	c.EntryScript = writeFile(t, dir, "main.py")
	return c
}

func TestValidate_Success(t *testing.T) {
	for _, backend := range SupportedBackends() {
		t.Run(backend, func(t *testing.T) {
			c := validConfig(t)
			c.Backend = backend
			c.IconPath = writeFile(t, filepath.Dir(c.EntryScript), "app.ico")

			ok, msg := c.Validate()
			assert.True(t, ok)
			assert.Empty(t, msg)
		})
	}
}

func TestValidate_RuleOrder(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.py")

	tests := []struct {
		name    string
		mutate  func(c *BuildConfig)
		wantMsg string
	}{
		{
			name: "missing entry script wins over everything",
			mutate: func(c *BuildConfig) {
				c.EntryScript = ""
				c.Name = ""
				c.IconPath = missing
				c.Backend = "py2exe"
			},
			wantMsg: "entry script is required",
		},
		{
			name: "nonexistent entry script wins over name",
			mutate: func(c *BuildConfig) {
				c.EntryScript = missing
				c.Name = ""
			},
			wantMsg: "entry script not found",
		},
		{
			name: "empty name wins over icon",
			mutate: func(c *BuildConfig) {
				c.Name = ""
				c.IconPath = missing
			},
			wantMsg: "application name is required",
		},
		{
			name: "missing icon wins over backend",
			mutate: func(c *BuildConfig) {
				c.IconPath = missing
				c.Backend = "py2exe"
			},
			wantMsg: "icon not found",
		},
		{
			name:    "unsupported backend",
			mutate:  func(c *BuildConfig) { c.Backend = "py2exe" },
			wantMsg: "unsupported backend: py2exe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig(t)
			tt.mutate(&c)

			ok, msg := c.Validate()
			assert.False(t, ok)
			assert.Contains(t, msg, tt.wantMsg)
		})
	}
}

func TestNormalized_Defaults(t *testing.T) {
	t.Setenv(EnvPython, "")
	c := validConfig(t)
	c.PythonExe = writeFile(t, t.TempDir(), "bin/python3")

	n, err := c.Normalized()
	require.NoError(t, err)

	projectDir, err := filepath.EvalSymlinks(filepath.Dir(c.EntryScript))
	require.NoError(t, err)
	assert.Equal(t, projectDir, n.ProjectDir)
	assert.Equal(t, filepath.Join(projectDir, "dist"), n.OutputDir)
	assert.True(t, filepath.IsAbs(n.PythonExe))
	assert.Empty(t, n.IconPath)
}

func TestNormalized_EmptyEntryUsesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	c := Default()
	c.PythonExe = writeFile(t, t.TempDir(), "bin/python3")

	n, err := c.Normalized()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, n.ProjectDir)
	assert.Empty(t, n.EntryScript)
}

func TestNormalized_PythonFromEnvironment(t *testing.T) {
	python := writeFile(t, t.TempDir(), "python-forced")
	t.Setenv(EnvPython, python)

	n, err := validConfig(t).Normalized()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(python)
	require.NoError(t, err)
	assert.Equal(t, want, n.PythonExe)
}

func TestNormalized_DoesNotMutateInput(t *testing.T) {
	c := validConfig(t)
	c.AddData = []DataPair{{Source: "data.txt", Dest: "res"}}
	c.HiddenImports = []string{"a"}
	c.Env = map[string]string{"K": "V"}

	before, err := json.Marshal(c)
	require.NoError(t, err)

	n, err := c.Normalized()
	require.NoError(t, err)
	n.HiddenImports[0] = "changed"
	n.Env["K"] = "changed"

	after, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestNormalized_Idempotent(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "realDir")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	writeFile(t, realDir, "main.py")

	c := Default()
	c.EntryScript = filepath.Join(link, "main.py")
	c.IconPath = filepath.Join(link, "icons", "..", "missing.ico")
	c.PythonExe = filepath.Join(link, "not-yet", "python")
	c.AddData = []DataPair{{Source: filepath.Join(link, "data.txt"), Dest: ""}}
	c.DirsToInclude = []string{filepath.Join(link, "assets")}
	c.FilesToInclude = []string{filepath.Join(link, "main.py")}

	once, err := c.Normalized()
	require.NoError(t, err)
	twice, err := once.Normalized()
	require.NoError(t, err)

	assert.Equal(t, once, twice)

	realResolved, err := filepath.EvalSymlinks(realDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realResolved, "main.py"), once.EntryScript)
	assert.Equal(t, filepath.Join(realResolved, "missing.ico"), once.IconPath)
	assert.Equal(t, "", once.AddData[0].Dest)
}

func TestNormalized_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	c := validConfig(t)
	c.OutputDir = "~/out"

	n, err := c.Normalized()
	require.NoError(t, err)

	resolvedHome, err := filepath.EvalSymlinks(home)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedHome, "out"), n.OutputDir)
}

func TestDataPair_JSON(t *testing.T) {
	var pairs []DataPair
	require.NoError(t, json.Unmarshal([]byte(`[["a.txt", "res"], ["b.txt"], {"source": "c.txt", "dest": "x"}]`), &pairs))
	assert.Equal(t, []DataPair{{"a.txt", "res"}, {"b.txt", ""}, {"c.txt", "x"}}, pairs)

	out, err := json.Marshal(DataPair{Source: "a.txt"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a.txt", ""]`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`[]`), &DataPair{}))
}

func TestEnvironment_FileThenOverlay(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("A=from-file\nB=from-file\n"), 0o644))

	c := Default()
	c.EnvFile = envFile
	c.Env = map[string]string{"B": "explicit"}

	env, err := c.Environment()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "from-file", "B": "explicit"}, env)

	c.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	_, err = c.Environment()
	assert.Error(t, err)
}

func TestMetadataDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultCompany, c.CompanyName())
	assert.Equal(t, DefaultVersion, c.ProductVersion())

	c.Company, c.Version = "Acme", "2.1.0"
	assert.Equal(t, "Acme", c.CompanyName())
	assert.Equal(t, "2.1.0", c.ProductVersion())
}
