// Package installer turns a built application into a distributable folder:
// the packaged files, setup scripts for Windows and POSIX hosts, a BLAKE3
// checksum manifest and, optionally, a compressed tarball of the folder.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/pypackstudio/pypack/internal/filemgr"
)

const (
	WindowsScript = "setup.bat"
	PosixScript   = "setup.sh"
	ManifestName  = "MANIFEST.b3"
)

var (
	ErrArtifactNotFound   = errors.New("built artifact not found")
	ErrDestInsideSource   = errors.New("installer destination is inside the artifact directory")
	ErrMissingAppName     = errors.New("application name is required")
	ErrUnknownCompression = errors.New("unknown compression")
)

// Options describes one installer run.
type Options struct {
	AppName     string
	Source      string // built artifact directory
	Dest        string // installer folder, created if missing
	Compression Compression
}

// Result reports what an installer run produced.
type Result struct {
	Dest     string
	Files    int
	Manifest string
	Archive  string // empty when no compression was requested
}

type Builder struct {
	logger hclog.Logger
}

func New(logger hclog.Logger) *Builder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Builder{logger: logger.Named("installer")}
}

// ArtifactDir returns outputDir/name when the build produced a folder named
// after the app (onedir mode), otherwise outputDir.
func ArtifactDir(outputDir, name string) string {
	if name != "" {
		candidate := filepath.Join(outputDir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return outputDir
}

// Build copies the artifact into the destination folder, writes the setup
// scripts and manifest, then archives the folder if requested.
func (b *Builder) Build(ctx context.Context, opts Options) (Result, error) {
	if opts.AppName == "" {
		return Result{}, ErrMissingAppName
	}
	compression, err := ParseCompression(string(opts.Compression))
	if err != nil {
		return Result{}, err
	}

	src, err := filepath.Abs(opts.Source)
	if err != nil {
		return Result{}, err
	}
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return Result{}, err
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, src)
	}
	if rel, err := filepath.Rel(src, dest); err == nil && !strings.HasPrefix(rel, "..") {
		return Result{}, fmt.Errorf("%w: %s", ErrDestInsideSource, dest)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dest, err)
	}

	log := b.logger.With("app", opts.AppName, "dest", dest)
	log.Info("copying artifact", "source", src)

	payload, err := copyPayload(ctx, src, dest)
	if err != nil {
		return Result{}, err
	}

	if err := writeScripts(dest, opts.AppName); err != nil {
		return Result{}, err
	}

	manifest := filepath.Join(dest, ManifestName)
	if err := writeManifest(ctx, dest, payload, manifest); err != nil {
		return Result{}, err
	}
	log.Info("manifest written", "files", len(payload))

	res := Result{Dest: dest, Files: len(payload), Manifest: manifest}
	if compression != CompressionNone {
		archive, err := writeArchive(ctx, dest, compression)
		if err != nil {
			return Result{}, err
		}
		res.Archive = archive
		log.Info("archive written", "path", archive)
	}
	return res, nil
}

// copyPayload merges the children of src into dest and returns the relative
// paths of the regular files copied.
func copyPayload(ctx context.Context, src, dest string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dest, e.Name())
		if e.IsDir() {
			err = filemgr.CopyTree(from, to)
		} else if e.Type().IsRegular() {
			err = filemgr.CopyFile(from, to)
		}
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", from, err)
		}
	}
	return regularFiles(src)
}
