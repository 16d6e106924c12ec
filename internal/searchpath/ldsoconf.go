package searchpath

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const ldSoConfPath = "/etc/ld.so.conf"

// ldSoConfDirs parses /etc/ld.so.conf, expanding "include" directives
// recursively via glob against the containing directory, per spec.md
// §3 ("directories parsed from the linker configuration, with include
// directives expanded recursively").
func ldSoConfDirs() []string {
	return parseLdSoConf(ldSoConfPath, map[string]bool{})
}

func parseLdSoConf(path string, visited map[string]bool) []string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if visited[abs] {
		return nil
	}
	visited[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var dirs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := cutPrefix(line, "include"); ok {
			pattern := strings.TrimSpace(rest)
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(path), pattern)
			}
			matches, err := filepath.Glob(pattern)
			if err != nil {
				continue
			}
			for _, m := range matches {
				dirs = append(dirs, parseLdSoConf(m, visited)...)
			}
			continue
		}
		dirs = append(dirs, line)
	}
	return dirs
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if rest == s { // prefix was empty, not our case
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return rest, true
}
