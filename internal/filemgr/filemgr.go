// Package filemgr handles the file operations around a build: copying the
// extra directories and files a project ships next to the packaged app, and
// emptying an output directory.
package filemgr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ResourceDir receives .png files copied next to the app.
const ResourceDir = "res"

type Manager struct {
	logger hclog.Logger
}

func New(logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{logger: logger.Named("files")}
}

// AppRoot returns the directory extra items are copied into: outputDir itself
// when it is already named after the app, otherwise outputDir/appName.
func AppRoot(outputDir, appName string) string {
	if appName == "" || filepath.Base(outputDir) == appName {
		return outputDir
	}
	return filepath.Join(outputDir, appName)
}

// CopyItems copies each item into the app root under outputDir. Missing
// sources are skipped with a warning. A failing item does not stop the
// others; all failures are returned joined.
func (m *Manager) CopyItems(items []string, outputDir, appName string) error {
	if len(items) == 0 {
		return nil
	}
	root := AppRoot(outputDir, appName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create app root %s: %w", root, err)
	}

	var errs []error
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			m.logger.Warn("skipping missing item", "path", item)
			continue
		}
		if err := m.copyItem(item, info, root); err != nil {
			m.logger.Error("copy failed", "path", item, "error", err)
			errs = append(errs, fmt.Errorf("copy %s: %w", item, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) copyItem(src string, info os.FileInfo, root string) error {
	name := filepath.Base(src)

	if !info.IsDir() {
		dstDir := root
		if strings.EqualFold(filepath.Ext(name), ".png") {
			dstDir = filepath.Join(root, ResourceDir)
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return err
			}
		}
		dst := filepath.Join(dstDir, name)
		if err := CopyFile(src, dst); err != nil {
			return err
		}
		m.logger.Info("file copied", "src", src, "dst", dst)
		return nil
	}

	dst := filepath.Join(root, name)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove existing %s: %w", dst, err)
	}
	if err := CopyTree(src, dst); err != nil {
		return err
	}
	m.logger.Info("directory copied", "src", src, "dst", dst)
	return nil
}

// CleanOutput removes every child of outputDir but keeps the directory. A
// missing directory is only a warning.
func (m *Manager) CleanOutput(outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("output directory does not exist", "path", outputDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", outputDir, err)
	}

	var errs []error
	for _, e := range entries {
		p := filepath.Join(outputDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			m.logger.Error("remove failed", "path", p, "error", err)
			errs = append(errs, err)
		}
	}
	m.logger.Info("output directory emptied", "path", outputDir, "removed", len(entries)-len(errs))
	return errors.Join(errs...)
}
