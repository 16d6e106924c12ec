// Package config hand-parses the INI-style settings file described in
// spec.md §6. No INI or key=value parsing library appears anywhere in
// the retrieved example pack (the nearest relative, BurntSushi/toml,
// is a different grammar with typed tables that would silently change
// the documented case-sensitive, comma-list-valued key semantics), so
// this is the one ambient concern built on the standard library alone.
package config

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/platform"
)

// Settings is the typed settings record produced from the [Package]
// and [System] sections of spec.md §6's config table.
type Settings struct {
	SourcesDir     string
	TargetPlatform platform.Target
	TargetArch     string
	MainExecutable string // relative to DataDir
	LibDir         string // relative to DataDir
	BuildType      string // Debug, Release, MinSizeRel

	ExtraSystemLibDirs []string // System.libDir
	ExtraLibs          []string // System.extraLibs
	Strip              bool
	StripCmd           string
}

// defaults mirror the original tool's fall-back values for keys a
// deployment config commonly omits.
func defaults() Settings {
	return Settings{
		BuildType: "Release",
		StripCmd:  "strip",
	}
}

// Load reads and parses an INI settings file from path.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads INI-style settings from r: `[Section]` headers,
// `key = value` pairs, `#`/`;` line comments, case-sensitive keys.
func Parse(r io.Reader) (*Settings, error) {
	s := defaults()
	section := ""

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		if err := s.apply(section, key, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("config: %w", err)
	}
	return &s, nil
}

func stripComment(line string) string {
	for _, marker := range []string{"#", ";"} {
		if i := strings.Index(line, marker); i >= 0 {
			line = line[:i]
		}
	}
	return line
}

func splitKV(line string) (key, value string, ok bool) {
	i := strings.Index(line, "=")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func (s *Settings) apply(section, key, value string) error {
	switch section {
	case "Package":
		switch key {
		case "sourcesDir":
			s.SourcesDir = value
		case "targetPlatform":
			t, err := platform.ParseTarget(value)
			if err != nil {
				return xerrors.Errorf("config: %w", err)
			}
			s.TargetPlatform = t
		case "targetArch":
			s.TargetArch = value
		case "mainExecutable":
			s.MainExecutable = value
		case "libDir":
			s.LibDir = value
		case "buildType":
			s.BuildType = value
		}
	case "System":
		switch key {
		case "libDir":
			s.ExtraSystemLibDirs = splitList(value)
		case "extraLibs":
			s.ExtraLibs = splitList(value)
		case "strip":
			s.Strip = parseBool(value)
		case "stripCmd":
			s.StripCmd = value
		}
	}
	return nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool implements spec.md §6's boolean grammar: true/yes/1
// case-insensitive, everything else false.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// StripInRelease reports whether C8's strip phase should run for this
// build type (spec.md §4.7 step 5: "Release/MinSizeRel and
// strip-enabled only").
func (s *Settings) StripInRelease() bool {
	return s.Strip && (s.BuildType == "Release" || s.BuildType == "MinSizeRel")
}
