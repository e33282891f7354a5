// Package pending tracks files awaiting verification. A marker is a file
// <dir>/<stem>.pending whose stem names a path under the project root, with
// "/" flattened to "__". Markers are cleared only after a successful run.
package pending

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultDir is the marker directory relative to the project root.
const DefaultDir = ".build/checkpoints/pending"

const (
	markerExt = ".pending"
	sep       = "__"
)

// Markers manages the marker directory of one project.
type Markers struct {
	root string
	dir  string
}

// New returns Markers for the project at root. A relative dir is resolved
// against root.
func New(root, dir string) *Markers {
	if dir == "" {
		dir = DefaultDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return &Markers{root: root, dir: dir}
}

// Dir returns the marker directory.
func (m *Markers) Dir() string {
	return m.dir
}

// Stem flattens a project-relative path into a marker stem.
func Stem(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(filepath.Clean(rel)), "/", sep)
}

// PathFromStem reverses Stem.
func PathFromStem(stem string) string {
	return filepath.FromSlash(strings.ReplaceAll(stem, sep, "/"))
}

// Mark writes a marker for each project-relative path.
func (m *Markers) Mark(paths ...string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("pending: create dir: %w", err)
	}
	for _, p := range paths {
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(m.root, p)
			if err != nil {
				return fmt.Errorf("pending: %s: %w", p, err)
			}
			p = rel
		}
		if strings.HasPrefix(filepath.ToSlash(filepath.Clean(p)), "../") {
			return fmt.Errorf("pending: %s is outside the project", p)
		}
		name := filepath.Join(m.dir, Stem(p)+markerExt)
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			return fmt.Errorf("pending: mark %s: %w", p, err)
		}
	}
	return nil
}

// List returns the project-relative paths with markers, sorted. A missing
// marker directory means nothing is pending.
func (m *Markers) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending: read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), markerExt) {
			continue
		}
		out = append(out, PathFromStem(strings.TrimSuffix(e.Name(), markerExt)))
	}
	sort.Strings(out)
	return out, nil
}

// Files resolves pending paths against the project root and drops the ones
// that no longer exist.
func (m *Markers) Files() ([]string, error) {
	rels, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rels {
		p := filepath.Join(m.root, r)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Clear removes every marker and returns how many were removed.
func (m *Markers) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, "*"+markerExt))
	if err != nil {
		return 0, fmt.Errorf("pending: glob: %w", err)
	}
	n := 0
	for _, p := range matches {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("pending: clear: %w", err)
		}
		n++
	}
	return n, nil
}
