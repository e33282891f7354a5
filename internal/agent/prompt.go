package agent

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var (
	deepDiveTmpl = template.Must(template.ParseFS(promptFS, "prompts/deep-dive.tmpl"))
	voteTmpl     = template.Must(template.ParseFS(promptFS, "prompts/severity-vote.tmpl"))
)

// DefaultMaxFileBytes caps how much of one file a direct prompt carries.
const DefaultMaxFileBytes = 64 << 10

// FileSource is the text of one input file as sent to a direct agent.
type FileSource struct {
	Path    string
	Content string
	// Truncated is set when Content stops at the size cap.
	Truncated bool
	// Err is set when the file could not be read; Content is then empty.
	Err string
}

// Numbered returns Content with 1-based line numbers, so reported lines
// match the file.
func (f FileSource) Numbered() string {
	lines := strings.Split(strings.TrimRight(f.Content, "\n"), "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%4d | %s\n", i+1, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// LoadSources reads files for a direct prompt, keeping at most maxBytes of
// each (0 means DefaultMaxFileBytes). Unreadable files are kept with Err
// set so the prompt still names them.
func LoadSources(files []string, maxBytes int, readFile func(string) ([]byte, error)) []FileSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	out := make([]FileSource, 0, len(files))
	for _, path := range files {
		fs := FileSource{Path: path}
		data, err := readFile(path)
		switch {
		case err != nil:
			fs.Err = err.Error()
		case len(data) > maxBytes:
			fs.Content = string(data[:maxBytes])
			fs.Truncated = true
		default:
			fs.Content = string(data)
		}
		out = append(out, fs)
	}
	return out
}

// PromptData is passed to an agent's prompt template.
type PromptData struct {
	SessionID string
	Files     []string
	Sources   []FileSource
}

// SectionData is passed to the deep-dive and severity-vote templates.
type SectionData struct {
	Agent     Role
	File      string
	StartLine int
	EndLine   int
	Reason    string
	Severity  string
	Code      string
}

// DefaultPrompt returns the built-in template for role.
func DefaultPrompt(role Role) (string, error) {
	data, err := promptFS.ReadFile("prompts/" + string(role) + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("agent: no built-in prompt for %s", role)
	}
	return string(data), nil
}

// RenderPrompt renders desc's prompt, or the built-in one when desc has none.
func RenderPrompt(desc Descriptor, data PromptData) (string, error) {
	src := desc.Prompt
	if src == "" {
		var err error
		if src, err = DefaultPrompt(desc.ID); err != nil {
			return "", err
		}
	}
	tmpl, err := template.New(string(desc.ID)).Parse(src)
	if err != nil {
		return "", fmt.Errorf("agent: %s: parse prompt: %w", desc.ID, err)
	}
	return execute(tmpl, data)
}

// RenderDeepDive renders the confirmation prompt for one flagged section.
func RenderDeepDive(data SectionData) (string, error) {
	return execute(deepDiveTmpl, data)
}

// RenderSeverityVote renders the prompt used to vote on a section's severity.
func RenderSeverityVote(data SectionData) (string, error) {
	return execute(voteTmpl, data)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("agent: render %s: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
