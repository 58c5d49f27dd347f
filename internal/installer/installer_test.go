package installer

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeArtifact lays out a onedir-style build under dist/App.
func fakeArtifact(t *testing.T) (outputDir, artifact string) {
	t.Helper()
	outputDir = filepath.Join(t.TempDir(), "dist")
	artifact = filepath.Join(outputDir, "App")
	writeFile(t, filepath.Join(artifact, "App.exe"), "binary")
	writeFile(t, filepath.Join(artifact, "_internal", "lib.dll"), "library")
	writeFile(t, filepath.Join(artifact, "_internal", "data", "strings.json"), "{}")
	return outputDir, artifact
}

func blake3Hex(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestArtifactDir(t *testing.T) {
	outputDir, artifact := fakeArtifact(t)
	assert.Equal(t, artifact, ArtifactDir(outputDir, "App"))
	assert.Equal(t, outputDir, ArtifactDir(outputDir, "Other"))
	assert.Equal(t, outputDir, ArtifactDir(outputDir, ""))
}

func TestBuildLayoutAndManifest(t *testing.T) {
	_, artifact := fakeArtifact(t)
	dest := filepath.Join(t.TempDir(), "App-installer")

	res, err := New(nil).Build(context.Background(), Options{
		AppName: "App",
		Source:  artifact,
		Dest:    dest,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Empty(t, res.Archive)

	assert.FileExists(t, filepath.Join(dest, "App.exe"))
	assert.FileExists(t, filepath.Join(dest, "_internal", "data", "strings.json"))

	bat, err := os.ReadFile(filepath.Join(dest, WindowsScript))
	require.NoError(t, err)
	assert.Contains(t, string(bat), `xcopy /E /I /Y ".\*" "%PROGRAMFILES%\App"`)
	assert.Contains(t, string(bat), `%PROGRAMFILES%\App\App.exe`)
	assert.Contains(t, string(bat), "\r\n")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, PosixScript))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}

	entries, err := ReadManifest(res.Manifest)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ManifestEntry{Digest: blake3Hex("binary"), Path: "App.exe"}, entries[0])
	assert.Equal(t, "_internal/data/strings.json", entries[1].Path)
	assert.Equal(t, "_internal/lib.dll", entries[2].Path)
	assert.Equal(t, blake3Hex("library"), entries[2].Digest)

	require.NoError(t, VerifyManifest(dest))
	writeFile(t, filepath.Join(dest, "App.exe"), "tampered")
	assert.ErrorContains(t, VerifyManifest(dest), "App.exe")
}

func TestBuildMergesIntoExistingDestination(t *testing.T) {
	_, artifact := fakeArtifact(t)
	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "_internal", "keep.txt"), "keep")

	_, err := New(nil).Build(context.Background(), Options{AppName: "App", Source: artifact, Dest: dest})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "_internal", "keep.txt"))
	assert.FileExists(t, filepath.Join(dest, "_internal", "lib.dll"))
}

func tarNames(t *testing.T, r io.Reader) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
}

func TestBuildArchives(t *testing.T) {
	openGzip := func(r io.Reader) (io.Reader, error) { return pgzip.NewReader(r) }
	openZstd := func(r io.Reader) (io.Reader, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	}
	cases := []struct {
		name        string
		compression Compression
		want        Compression
		open        func(io.Reader) (io.Reader, error)
	}{
		{"gz", CompressionGzip, CompressionGzip, openGzip},
		{"gzip alias", "gzip", CompressionGzip, openGzip},
		{"xz", CompressionXZ, CompressionXZ, func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }},
		{"zst", CompressionZstd, CompressionZstd, openZstd},
		{"zstd alias", "zstd", CompressionZstd, openZstd},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, artifact := fakeArtifact(t)
			dest := filepath.Join(t.TempDir(), "App-setup")

			res, err := New(nil).Build(context.Background(), Options{
				AppName:     "App",
				Source:      artifact,
				Dest:        dest,
				Compression: tc.compression,
			})
			require.NoError(t, err)
			assert.Equal(t, dest+tc.want.Extension(), res.Archive)

			f, err := os.Open(res.Archive)
			require.NoError(t, err)
			defer f.Close()

			r, err := tc.open(f)
			require.NoError(t, err)
			names := tarNames(t, r)
			assert.Contains(t, names, "App-setup/")
			assert.Contains(t, names, "App-setup/App.exe")
			assert.Contains(t, names, "App-setup/_internal/lib.dll")
			assert.Contains(t, names, "App-setup/"+ManifestName)
			assert.Contains(t, names, "App-setup/"+WindowsScript)
		})
	}
}

func TestBuildNoneAliasWritesNoArchive(t *testing.T) {
	_, artifact := fakeArtifact(t)
	dest := filepath.Join(t.TempDir(), "App-setup")

	res, err := New(nil).Build(context.Background(), Options{
		AppName:     "App",
		Source:      artifact,
		Dest:        dest,
		Compression: "none",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Archive)
	assert.NoFileExists(t, dest+".tar.none")
}

func TestBuildErrors(t *testing.T) {
	_, artifact := fakeArtifact(t)
	b := New(nil)
	ctx := context.Background()

	_, err := b.Build(ctx, Options{Source: artifact, Dest: t.TempDir()})
	assert.ErrorIs(t, err, ErrMissingAppName)

	_, err = b.Build(ctx, Options{AppName: "App", Source: filepath.Join(t.TempDir(), "none"), Dest: t.TempDir()})
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = b.Build(ctx, Options{AppName: "App", Source: artifact, Dest: filepath.Join(artifact, "setup")})
	assert.ErrorIs(t, err, ErrDestInsideSource)

	_, err = b.Build(ctx, Options{AppName: "App", Source: artifact, Dest: t.TempDir(), Compression: "rar"})
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestBuildCancelled(t *testing.T) {
	_, artifact := fakeArtifact(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Build(ctx, Options{AppName: "App", Source: artifact, Dest: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":      CompressionNone,
		"none":  CompressionNone,
		"gzip":  CompressionGzip,
		"TGZ":   CompressionGzip,
		"xz":    CompressionXZ,
		"zstd":  CompressionZstd,
		" zst ": CompressionZstd,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("bz2")
	assert.ErrorIs(t, err, ErrUnknownCompression)
	assert.Equal(t, ".tar.zst", CompressionZstd.Extension())
	assert.Empty(t, CompressionNone.Extension())
}

func TestPosixSetupQuotesName(t *testing.T) {
	script := PosixSetup("My App")
	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "APP_NAME='My App'\n")
	assert.Contains(t, PosixSetup("App"), "APP_NAME=App\n")
}
