package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cshinei1990/PDF-rotate/internal/config"
)

func TestPromptFloatKeepsDefault(t *testing.T) {
	var out bytes.Buffer

	in := bufio.NewReader(strings.NewReader("\n"))
	assert.Equal(t, 5.0, promptFloat(in, &out, "Confidence threshold", 5, config.ValidThreshold))
	assert.Contains(t, out.String(), "default 5")

	out.Reset()
	in = bufio.NewReader(strings.NewReader("abc\n"))
	assert.Equal(t, 5.0, promptFloat(in, &out, "Confidence threshold", 5, config.ValidThreshold))
	assert.Contains(t, out.String(), `Could not read "abc"`)

	in = bufio.NewReader(strings.NewReader("2.5\n"))
	assert.Equal(t, 2.5, promptFloat(in, &out, "Confidence threshold", 5, config.ValidThreshold))
}

func TestPromptIntAtEOF(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("300"))
	assert.Equal(t, 300, promptInt(in, &out, "DPI", 200, config.ValidDPI))

	in = bufio.NewReader(strings.NewReader(""))
	assert.Equal(t, 200, promptInt(in, &out, "DPI", 200, config.ValidDPI))
}

func TestPromptRejectsOutOfRange(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("10\n"))
	assert.Equal(t, 200, promptInt(in, &out, "DPI", 200, config.ValidDPI))
	assert.Contains(t, out.String(), "DPI 10 is out of range; using 200")

	out.Reset()
	in = bufio.NewReader(strings.NewReader("-1\n"))
	assert.Equal(t, 5.0, promptFloat(in, &out, "Confidence threshold", 5, config.ValidThreshold))
	assert.Contains(t, out.String(), "out of range; using 5")
}

func TestNumericFlagsFallBack(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   float64
		notice string
	}{
		{"number", "3.5", 3.5, ""},
		{"garbage", "abc", 5, `Could not read "abc" as a number; using 5`},
		{"negative", "-2", 5, "out of range; using 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.want, floatOrDefault(&out, "Confidence threshold", tt.raw, 5, config.ValidThreshold))
			if tt.notice == "" {
				assert.Empty(t, out.String())
			} else {
				assert.Contains(t, out.String(), tt.notice)
			}
		})
	}

	var out bytes.Buffer
	assert.Equal(t, 200, intOrDefault(&out, "DPI", "fine", 200, config.ValidDPI))
	assert.Contains(t, out.String(), `Could not read "fine" as an integer; using 200`)
}

func TestRunUnparseableFlagKeepsDefault(t *testing.T) {
	t.Setenv("ORIENT_CONFIG", "")
	t.Setenv("ORIENT_CONF_THRESHOLD", "")
	t.Setenv("ORIENT_DPI", "")
	var out bytes.Buffer

	// Parsing succeeds; the run only stops because no paths were given.
	code := run([]string{"-threshold", "abc", "-dpi", "10"}, strings.NewReader("\n"), &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), `Could not read "abc" as a number; using 5`)
	assert.Contains(t, out.String(), "DPI 10 is out of range; using 200")
}

func TestReadPathsStopsAtBlankLine(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	input := filepath.Join(dir, "*.pdf") + "\n\"/tmp/quoted file.pdf\"\n\nignored.pdf\n"
	var out bytes.Buffer
	paths := readPaths(bufio.NewReader(strings.NewReader(input)), &out)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.pdf"),
		"/tmp/quoted file.pdf",
	}, paths)
}

func TestExpandPathsKeepsUnmatchedPattern(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "*.pdf")
	assert.Equal(t, []string{pattern}, expandPaths([]string{pattern}))
}

func TestRunWithoutPathsFails(t *testing.T) {
	t.Setenv("ORIENT_CONFIG", "")
	var out bytes.Buffer
	code := run([]string{"-threshold", "3"}, strings.NewReader("\n"), &out)
	assert.Equal(t, 1, code)
}
