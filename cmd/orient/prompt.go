package main

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cshinei1990/PDF-rotate/internal/config"
)

// promptFloat asks for a value, keeping def on blank, unparseable or
// rejected input.
func promptFloat(in *bufio.Reader, out io.Writer, label string, def float64, valid func(float64) bool) float64 {
	fmt.Fprintf(out, "%s [default %g]: ", label, def)
	line, _ := in.ReadString('\n')
	return floatOrDefault(out, label, line, def, valid)
}

// promptInt is promptFloat for integers.
func promptInt(in *bufio.Reader, out io.Writer, label string, def int, valid func(int) bool) int {
	fmt.Fprintf(out, "%s [default %d]: ", label, def)
	line, _ := in.ReadString('\n')
	return intOrDefault(out, label, line, def, valid)
}

// floatOrDefault parses raw for label, printing a notice and returning def
// when raw is not a number or fails valid.
func floatOrDefault(out io.Writer, label, raw string, def float64, valid func(float64) bool) float64 {
	v, ok := config.ParseFloatOrDefault(raw, def)
	if !ok {
		fmt.Fprintf(out, "Could not read %q as a number; using %g\n", strings.TrimSpace(raw), def)
		return def
	}
	if valid != nil && !valid(v) {
		fmt.Fprintf(out, "%s %g is out of range; using %g\n", label, v, def)
		return def
	}
	return v
}

func intOrDefault(out io.Writer, label, raw string, def int, valid func(int) bool) int {
	v, ok := config.ParseIntOrDefault(raw, def)
	if !ok {
		fmt.Fprintf(out, "Could not read %q as an integer; using %d\n", strings.TrimSpace(raw), def)
		return def
	}
	if valid != nil && !valid(v) {
		fmt.Fprintf(out, "%s %d is out of range; using %d\n", label, v, def)
		return def
	}
	return v
}

// readPaths reads one path per line until a blank line or EOF.
func readPaths(in *bufio.Reader, out io.Writer) []string {
	fmt.Fprintln(out, "Enter PDF paths, one per line; finish with an empty line:")
	var raw []string
	for {
		line, err := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		raw = append(raw, line)
		if err != nil {
			break
		}
	}
	return expandPaths(raw)
}

// expandPaths expands glob patterns; a pattern with no match is kept as
// typed so the later open reports it.
func expandPaths(args []string) []string {
	var paths []string
	for _, arg := range args {
		arg = strings.Trim(arg, `"'`)
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			paths = append(paths, arg)
			continue
		}
		paths = append(paths, matches...)
	}
	return paths
}
