// Package exclude implements the per-target allowlist/denylist of
// spec.md §4.3: full-match regexes loaded once from a plain-text data
// file and applied to every resolved dependency path before it enters
// the closure.
package exclude

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/platform"
)

// List is a loaded, ready-to-match exclusion rule set for one target.
type List struct {
	target     platform.Target
	patterns   []*regexp.Regexp
	rawSources []string // original pattern text, for diagnostics
}

// Load reads one regex per non-empty, non-comment line from r. '#'
// starts a comment and may appear mid-line.
func Load(target platform.Target, r io.Reader) (*List, error) {
	l := &List{target: target}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pattern := line
		if target == platform.Windows {
			// An escaped backslash (`\\`) is a path separator and becomes
			// "/"; other escapes such as `\.` are left intact.
			pattern = strings.ToLower(strings.ReplaceAll(pattern, `\\`, "/"))
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, xerrors.Errorf("exclude: invalid pattern %q: %w", line, err)
		}
		l.patterns = append(l.patterns, re)
		l.rawSources = append(l.rawSources, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadFile opens the data file named "<target>.txt" inside dir, per
// spec.md §6 ("named for that target"). A missing file yields an empty,
// non-nil List: no exclusion file is not a configuration error.
func LoadFile(target platform.Target, dir string) (*List, error) {
	path := dir + "/" + target.String() + ".txt"
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &List{target: target}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(target, f)
}

// Excludes reports whether path matches any loaded rule. On Windows
// targets the candidate path is lowercased and backslash-normalized
// the same way the patterns were at load time (spec.md §4.3).
func (l *List) Excludes(path string) bool {
	candidate := path
	if l.target == platform.Windows {
		candidate = strings.ToLower(strings.ReplaceAll(candidate, `\`, "/"))
	}
	for _, re := range l.patterns {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}
