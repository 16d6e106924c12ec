// Package buildinfo emits C9's build-provenance record: VCS commit
// hash, CI build-log URL, host OS and architecture (Go's runtime.GOOS
// and runtime.GOARCH; OS release files are not read), and per-dependency package
// provenance, per spec.md §4.8 and SPEC_FULL.md §9's "supplemented
// features" (grounded on the original tool's DTGit.py/DTSystemPackages.py).
package buildinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/renameio"

	"github.com/webcamoid/DeployTools/internal/platform"
)

// Info is the record written to the staging tree's build-info file.
type Info struct {
	CommitHash  string
	CIBuildURL  string
	HostOS      string
	HostArch    string
	Provenance  map[string]string // resolved host library path -> owning package, best-effort
}

// Collect gathers build provenance for the resolved host library
// paths libPaths, rooted at sourcesDir for the VCS lookup.
func Collect(sourcesDir string, libPaths []string) *Info {
	return &Info{
		CommitHash: CommitHash(sourcesDir),
		CIBuildURL: ciBuildURL(),
		HostOS:     runtime.GOOS,
		HostArch:   runtime.GOARCH,
		Provenance: Provenance(libPaths),
	}
}

// CommitHash shells out to `git rev-parse HEAD` in dir; any failure
// (not a repo, git missing) falls back to "Unknown", matching the
// original tool's DTGit.py behavior.
func CommitHash(dir string) string {
	if !platform.HasTool("git") {
		return "Unknown"
	}
	res, err := platform.RunTool(false, "git", "-C", dir, "rev-parse", "HEAD")
	if err != nil || res.ExitCode != 0 {
		return "Unknown"
	}
	return strings.TrimSpace(res.Stdout)
}

// ciBuildURL reads the handful of environment variables common CI
// systems set for a build-log URL; empty if none are present.
func ciBuildURL() string {
	for _, key := range []string{"CI_JOB_URL", "BUILD_URL", "GITHUB_SERVER_URL"} {
		if v := os.Getenv(key); v != "" {
			if key == "GITHUB_SERVER_URL" {
				repo := os.Getenv("GITHUB_REPOSITORY")
				runID := os.Getenv("GITHUB_RUN_ID")
				if repo == "" || runID == "" {
					continue
				}
				return fmt.Sprintf("%s/%s/actions/runs/%s", v, repo, runID)
			}
			return v
		}
	}
	return ""
}

// packageManagers are tried in order; the first one present on $PATH
// is used for every provenance query (spec.md §6, "host package
// managers for provenance").
var packageManagers = []struct {
	name string
	args func(path string) []string
}{
	{"dpkg", func(path string) []string { return []string{"-S", path} }},
	{"rpm", func(path string) []string { return []string{"-qf", path} }},
	{"pacman", func(path string) []string { return []string{"-Qo", path} }},
	{"pkg", func(path string) []string { return []string{"which", path} }},
	{"brew", func(path string) []string { return []string{"list", "--formula"} }},
}

// Provenance asks the host's package manager which installed package
// owns each resolved host library path, skipping entries it cannot
// attribute. Only the first package manager found on $PATH is asked;
// the others are not consulted when it cannot attribute a path.
func Provenance(libPaths []string) map[string]string {
	var mgr *struct {
		name string
		args func(path string) []string
	}
	for i := range packageManagers {
		if platform.HasTool(packageManagers[i].name) {
			mgr = &packageManagers[i]
			break
		}
	}
	out := map[string]string{}
	if mgr == nil {
		return out
	}
	for _, p := range libPaths {
		res, err := platform.RunTool(false, mgr.name, mgr.args(p)...)
		if err != nil || res.ExitCode != 0 {
			continue
		}
		if pkg := strings.TrimSpace(res.Stdout); pkg != "" {
			out[p] = pkg
		}
	}
	return out
}

// Write renders Info as a small key: value text file and materializes
// it atomically via renameio, the same mechanism internal/stage uses
// for staged files.
func Write(path string, info *Info) error {
	var b strings.Builder
	fmt.Fprintf(&b, "commit: %s\n", info.CommitHash)
	if info.CIBuildURL != "" {
		fmt.Fprintf(&b, "ci-build-url: %s\n", info.CIBuildURL)
	}
	fmt.Fprintf(&b, "host: %s/%s\n", info.HostOS, info.HostArch)

	keys := make([]string, 0, len(info.Provenance))
	for k := range info.Provenance {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "provenance: %s: %s\n", k, info.Provenance[k])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}
