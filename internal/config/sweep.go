package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/platform"
)

// SweepList holds the per-target "never wanted in a bundle" filename
// suffixes (static archives, import libraries, .prl files, Headers/
// directories, .jar files) carried over from the original tool's data
// file, per SPEC_FULL.md §9.
type SweepList struct {
	suffixes []string
}

// LoadSweepFile reads "<dir>/<target>-unneeded.txt". A missing file is
// an empty, non-nil list, matching exclude.LoadFile's convention.
func LoadSweepFile(target platform.Target, dir string) (*SweepList, error) {
	path := filepath.Join(dir, target.String()+"-unneeded.txt")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &SweepList{}, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("sweep: %w", err)
	}
	defer f.Close()
	return ParseSweep(f)
}

// ParseSweep reads one filename suffix per line, "#" comments and
// blank lines ignored, mirroring exclude.Load's line grammar.
func ParseSweep(r io.Reader) (*SweepList, error) {
	var suffixes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suffixes = append(suffixes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("sweep: %w", err)
	}
	return &SweepList{suffixes: suffixes}, nil
}

// Unwanted reports whether path matches any configured suffix or
// directory-name fragment (e.g. a path containing "/Headers/").
func (l *SweepList) Unwanted(path string) bool {
	for _, suffix := range l.suffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+suffix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
