package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir is where reports land relative to the project root.
const DefaultDir = ".build/reports"

// FileSink persists reports as <session>.md, <session>.json and
// <session>.mmd under a directory.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileSink{dir: dir}
}

// Paths lists the files written for one report.
type Paths struct {
	Markdown string `json:"markdown"`
	JSON     string `json:"json"`
	Mermaid  string `json:"mermaid"`
}

// Write renders r in every format and writes the files.
func (s *FileSink) Write(r *Report) (Paths, error) {
	if r.SessionID == "" {
		return Paths{}, fmt.Errorf("report: empty session id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("report: create dir: %w", err)
	}
	base := filepath.Join(s.dir, r.SessionID)
	p := Paths{
		Markdown: base + ".md",
		JSON:     base + ".json",
		Mermaid:  base + ".mmd",
	}

	var md, js bytes.Buffer
	if err := WriteMarkdown(&md, r); err != nil {
		return Paths{}, err
	}
	if err := WriteJSON(&js, r); err != nil {
		return Paths{}, err
	}
	files := []struct {
		path string
		data []byte
	}{
		{p.Markdown, md.Bytes()},
		{p.JSON, js.Bytes()},
		{p.Mermaid, []byte(Mermaid(r))},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return Paths{}, fmt.Errorf("report: write %s: %w", filepath.Base(f.path), err)
		}
	}
	return p, nil
}
