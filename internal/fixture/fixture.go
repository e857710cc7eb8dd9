// Package fixture reads libinjection test-case files.
//
// A file is divided into sections by marker lines:
//
//	--TEST--
//	free-form description
//	--INPUT--
//	-1' and 1=1 union/* foo */select load_file('/etc/passwd')--
//	--EXPECTED--
//	s&1UE
//
// The input is the last line of the INPUT section. EXPECTED lines are joined
// without separators and trimmed; an empty result means no match is expected,
// anything else is the exact fingerprint expected on a match.
package fixture

import (
	"bufio"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/teranos/qntx-libinjection/errors"
)

const (
	markerTest     = "--TEST--"
	markerInput    = "--INPUT--"
	markerExpected = "--EXPECTED--"
)

// maxLine bounds a single fixture line.
const maxLine = 1 << 20

// Case is one test case.
type Case struct {
	Name     string `json:"name"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// WantMatch reports whether the case expects a detection.
func (c Case) WantMatch() bool {
	return c.Expected != ""
}

// Parse reads one fixture from r.
func Parse(name string, r io.Reader) (Case, error) {
	var (
		section  string
		input    string
		expected strings.Builder
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := sc.Text()
		switch line {
		case markerTest, markerInput, markerExpected:
			section = line
			continue
		}
		switch section {
		case markerInput:
			input = line
		case markerExpected:
			expected.WriteString(line)
		}
	}
	if err := sc.Err(); err != nil {
		return Case{}, errors.Wrapf(err, "fixture %s", name)
	}

	return Case{
		Name:     name,
		Input:    input,
		Expected: strings.TrimSpace(expected.String()),
	}, nil
}

// Load parses every file in fsys matching pattern (path.Match syntax), sorted
// by name.
func Load(fsys fs.FS, pattern string) ([]Case, error) {
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "fixture pattern %q", pattern)
	}
	sort.Strings(names)

	cases := make([]Case, 0, len(names))
	for _, name := range names {
		c, err := parseFile(fsys, name)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func parseFile(fsys fs.FS, name string) (Case, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Case{}, errors.Wrapf(err, "open fixture %s", name)
	}
	defer f.Close()
	return Parse(path.Base(name), f)
}
