package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "estimate", "vote", "batch", "cost-report", "pending", "findings", "serve-mcp", "version"} {
		assert.True(t, names[want], "root command missing subcommand %q", want)
	}
}

func TestBatchSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range batchCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["submit"])
	assert.True(t, names["poll"])
	assert.True(t, names["results"])
}

func TestVersionOutput(t *testing.T) {
	assert.Equal(t, "dev", version)

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "wavecheck dev (commit none, built unknown)\n", buf.String())
}

func TestParseLines(t *testing.T) {
	start, end, err := parseLines("")
	require.NoError(t, err)
	assert.Zero(t, start)
	assert.Zero(t, end)

	start, end, err = parseLines("4:9")
	require.NoError(t, err)
	assert.Equal(t, 4, start)
	assert.Equal(t, 9, end)

	for _, bad := range []string{"4", "a:b", "0:3", "9:4"} {
		_, _, err := parseLines(bad)
		assert.Error(t, err, bad)
	}
}

func TestExcerpt(t *testing.T) {
	src := "one\ntwo\nthree\nfour\n"

	code, start, end := excerpt(src, 2, 3)
	assert.Equal(t, "two\nthree", code)
	assert.Equal(t, 2, start)
	assert.Equal(t, 3, end)

	code, start, end = excerpt(src, 0, 0)
	assert.Equal(t, "one\ntwo\nthree\nfour", code)
	assert.Equal(t, 1, start)
	assert.Equal(t, 4, end)

	code, _, end = excerpt(src, 3, 40)
	assert.Equal(t, "three\nfour", code)
	assert.Equal(t, 4, end)
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	diff := filepath.Join(dir, "change.diff")
	require.NoError(t, os.WriteFile(diff, []byte("diff text"), 0o644))

	require.NoError(t, estimateCmd.Flags().Set("diff", diff))
	require.NoError(t, estimateCmd.Flags().Set("ext", ".py,.go"))
	t.Cleanup(func() { _ = estimateCmd.Flags().Set("diff", "") })

	in, err := readInput(estimateCmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "diff text", in.Diff)
	assert.Equal(t, []string{".py", ".go"}, in.Extensions)

	// Explicit files win over the diff.
	in, err = readInput(estimateCmd, []string{"a.py"})
	require.NoError(t, err)
	assert.Empty(t, in.Diff)
	assert.Equal(t, []string{"a.py"}, in.Files)
}

func TestPendingCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "db.py"), []byte("x = 1\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"pending", "mark", "--dir", dir, "app/db.py"})
	require.NoError(t, rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"pending", "list", "--dir", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "app/db.py\n", out.String())

	out.Reset()
	rootCmd.SetArgs([]string{"pending", "clear", "--dir", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "cleared 1 markers\n", out.String())
}

func TestRunWithNothingPendingSucceeds(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"run", "--dir", dir, "--quiet"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "no files pending verification")
}
