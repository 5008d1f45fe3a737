package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const maxLineBytes = 1 << 20

// Paths names the three text resources a registry is built from.
type Paths struct {
	Labels       string
	Descriptions string
	Indications  string
}

// Load reads the three newline-delimited resources and builds a registry.
// Label lines exported as "<index> <name>" are reduced to the name when the
// prefix matches the line position.
func Load(p Paths) (*Registry, error) {
	names, err := readLinesFile(p.Labels)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	descriptions, err := readLinesFile(p.Descriptions)
	if err != nil {
		return nil, fmt.Errorf("load descriptions: %w", err)
	}
	indications, err := readLinesFile(p.Indications)
	if err != nil {
		return nil, fmt.Errorf("load indications: %w", err)
	}

	for i, n := range names {
		names[i] = stripIndexPrefix(n, i)
	}
	return Build(names, descriptions, indications)
}

func readLinesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLines(f)
}

// ReadLines splits r into lines, one entry per line with order preserved.
// Blank lines in the middle are kept so positions stay aligned; a trailing
// newline does not produce an extra entry.
func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func stripIndexPrefix(line string, index int) string {
	head, rest, ok := strings.Cut(line, " ")
	if !ok {
		return line
	}
	n, err := strconv.Atoi(head)
	if err != nil || n != index {
		return line
	}
	return strings.TrimSpace(rest)
}
