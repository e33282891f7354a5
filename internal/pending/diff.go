package pending

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// FromDiff returns the files a unified diff adds or modifies, sorted and
// deduplicated. Deleted and binary files are skipped; renames report the
// new name.
func FromDiff(r io.Reader) ([]string, error) {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("pending: parse diff: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		if f.IsDelete || f.IsBinary || f.NewName == "" {
			continue
		}
		if !seen[f.NewName] {
			seen[f.NewName] = true
			out = append(out, f.NewName)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FilterExt keeps paths whose extension is in exts. Extensions are matched
// case-insensitively with or without the leading dot. No exts keeps all.
func FilterExt(paths []string, exts ...string) []string {
	if len(exts) == 0 {
		return paths
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want["."+strings.TrimPrefix(strings.ToLower(e), ".")] = true
	}
	var out []string
	for _, p := range paths {
		if want[strings.ToLower(filepath.Ext(p))] {
			out = append(out, p)
		}
	}
	return out
}
