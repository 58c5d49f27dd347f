package installer

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// regularFiles lists the regular files under root as slash-separated
// relative paths, sorted.
func regularFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}

// HashFile returns the hex BLAKE3-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeManifest writes one "<digest>  <path>" line per file, hashing the
// copies under dest.
func writeManifest(ctx context.Context, dest string, files []string, path string) error {
	var b strings.Builder
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := HashFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, rel)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// ManifestEntry is one parsed manifest line.
type ManifestEntry struct {
	Digest string
	Path   string
}

// ReadManifest parses a manifest written by Build.
func ReadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ManifestEntry
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		digest, rel, ok := strings.Cut(line, "  ")
		if !ok || len(digest) != 64 {
			return nil, fmt.Errorf("%s:%d: malformed manifest line", path, n)
		}
		entries = append(entries, ManifestEntry{Digest: digest, Path: rel})
	}
	return entries, sc.Err()
}

// VerifyManifest rehashes every manifest entry under dir and reports the
// first mismatch.
func VerifyManifest(dir string) error {
	entries, err := ReadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return err
	}
	for _, e := range entries {
		sum, err := HashFile(filepath.Join(dir, filepath.FromSlash(e.Path)))
		if err != nil {
			return fmt.Errorf("hash %s: %w", e.Path, err)
		}
		if sum != e.Digest {
			return fmt.Errorf("checksum mismatch for %s", e.Path)
		}
	}
	return nil
}
