// Package searchpath implements the per-target runtime-link search
// algorithm of spec.md §4.2: given an import name and an importer, it
// returns the concrete on-disk library the target's dynamic linker
// would find first.
package searchpath

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/webcamoid/DeployTools/internal/binfmt"
	"github.com/webcamoid/DeployTools/internal/platform"
)

// androidABI is one row of the fixed four-column NDK triple table from
// spec.md §4.2 ("derived from the target architecture tag via a fixed
// four-column table").
type androidABI struct {
	archTag string
	triple  string
	clangArch string
}

var androidTable = []androidABI{
	{"armeabi-v7a", "arm-linux-androideabi", "arm"},
	{"arm64-v8a", "aarch64-linux-android", "arm64"},
	{"x86", "i686-linux-android", "x86"},
	{"x86_64", "x86_64-linux-android", "x86_64"},
}

// Resolver holds the constructor-injected, per-target state the
// DESIGN NOTES call for in place of the original's global module
// state: "re-expressed as constructor-injected state on each parser
// instance."
type Resolver struct {
	Target platform.Target

	// MainExecutableDir is the directory containing the staged main
	// executable; used for @executable_path and Windows lookups.
	MainExecutableDir string

	// SystemRoots are the configured extra system-library roots
	// (System.libDir, comma-separated) consulted on every target.
	SystemRoots []string

	// AndroidNDKRoot / AndroidCCVersion / AndroidArchTag configure the
	// Android NDK sysroot lookup.
	AndroidNDKRoot   string
	AndroidCCVersion string
	AndroidArchTag   string

	// Env overrides the process environment for the DYLD_LIBRARY_PATH,
	// DYLD_FRAMEWORK_PATH and ANDROID_NDK_ROOT lookups, letting tests
	// avoid depending on the real environment.
	Env map[string]string
}

func (r *Resolver) getenv(key string) string {
	if r.Env != nil {
		return r.Env[key]
	}
	return os.Getenv(key)
}

// Resolve returns the absolute path of name as imported by importer,
// or ("", false) if no candidate directory contains it (spec.md §4.2:
// "Failure is non-fatal").
func (r *Resolver) Resolve(importer *binfmt.Binary, name string) (string, bool) {
	dirs := r.candidateDirs(importer, name)
	resolvedName := name
	if importer.Format == binfmt.MachO {
		resolvedName = machoBasename(name)
	}
	for _, dir := range dirs {
		candidate, ok := findInDir(dir, resolvedName, r.Target == platform.Windows)
		if !ok {
			continue
		}
		if importer.Format == binfmt.ELF {
			// A candidate that does not decode has no known machine tag
			// and is accepted; only a decoded mismatch is skipped.
			cb, ok, err := binfmt.Decode(candidate)
			if err == nil && ok && !elfMachineCompatible(importer.Machine, cb.Machine) {
				continue
			}
		}
		return candidate, true
	}
	return "", false
}

// findInDir tests dir/name for existence, falling back to a
// case-insensitive directory scan on Windows targets (spec.md §4.2:
// "Case-insensitive match on the filename").
func findInDir(dir, name string, caseInsensitive bool) (string, bool) {
	candidate := filepath.Join(dir, name)
	if info, err := os.Lstat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	if !caseInsensitive {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

func elfMachineCompatible(importer, candidate uint32) bool {
	const emNone = 0
	if candidate == emNone {
		return true
	}
	return importer == candidate
}

// machoBasename strips a leading @rpath//@loader_path/@executable_path
// token down to the bare filename once the token itself has already
// been substituted into a concrete directory by candidateDirs.
func machoBasename(name string) string {
	return filepath.Base(name)
}

// candidateDirs composes the ordered directory list per spec.md §4.2.
// The configured SystemRoots are sorted in every branch; embedded
// rpaths/runpaths, ld.so.conf entries and environment lists keep the
// order in which they are declared.
func (r *Resolver) candidateDirs(importer *binfmt.Binary, name string) []string {
	importerDir := filepath.Dir(importer.Path)
	switch r.Target {
	case platform.Android:
		return r.androidCandidateDirs()
	case platform.Mac:
		return r.machoCandidateDirs(importer, importerDir, name)
	case platform.Windows:
		return r.peCandidateDirs(importerDir)
	default: // Posix / generic ELF
		return r.elfCandidateDirs(importer, importerDir)
	}
}

func (r *Resolver) elfCandidateDirs(importer *binfmt.Binary, importerDir string) []string {
	var dirs []string
	dirs = append(dirs, expandOrigin(importer.RPaths, importerDir)...)
	dirs = append(dirs, sortedCopy(r.SystemRoots)...)
	dirs = append(dirs, expandOrigin(importer.RunPaths, importerDir)...)
	dirs = append(dirs, ldSoConfDirs()...)
	dirs = append(dirs, "/usr/lib", "/usr/lib64", "/lib", "/lib64", "/usr/local/lib", "/usr/local/lib64")
	return dirs
}

// expandOrigin substitutes $ORIGIN and normalizes relative rpath
// entries against importerDir, per spec.md §4.2.
func expandOrigin(entries []string, importerDir string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ReplaceAll(e, "$ORIGIN", importerDir)
		e = strings.ReplaceAll(e, "${ORIGIN}", importerDir)
		if !filepath.IsAbs(e) {
			e = filepath.Join(importerDir, e)
		}
		out = append(out, filepath.Clean(e))
	}
	return out
}

func sortedCopy(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}

func (r *Resolver) androidCandidateDirs() []string {
	var dirs []string
	dirs = append(dirs, sortedCopy(r.SystemRoots)...)
	ndk := r.AndroidNDKRoot
	if ndk == "" {
		ndk = r.getenv("ANDROID_NDK_ROOT")
	}
	if ndk != "" {
		triple, arch := androidTripleAndArch(r.AndroidArchTag)
		if triple != "" {
			dirs = append(dirs, filepath.Join(ndk, "sysroot", "usr", "lib", triple))
			dirs = append(dirs, filepath.Join(ndk, "lib", "clang", r.AndroidCCVersion, "lib", "linux", arch))
		}
	}
	return dirs
}

func androidTripleAndArch(archTag string) (triple, arch string) {
	for _, row := range androidTable {
		if row.archTag == archTag {
			return row.triple, row.clangArch
		}
	}
	return "", ""
}

func (r *Resolver) machoCandidateDirs(importer *binfmt.Binary, importerDir, name string) []string {
	var dirs []string
	switch {
	case strings.HasPrefix(name, "@executable_path/"):
		dirs = append(dirs, filepath.Join(r.MainExecutableDir, filepath.Dir(strings.TrimPrefix(name, "@executable_path/"))))
	case strings.HasPrefix(name, "@loader_path/"):
		dirs = append(dirs, filepath.Join(importerDir, filepath.Dir(strings.TrimPrefix(name, "@loader_path/"))))
	case strings.HasPrefix(name, "@rpath/"):
		rest := filepath.Dir(strings.TrimPrefix(name, "@rpath/"))
		for _, rp := range expandMachORpaths(importer.RPaths, importerDir, r.MainExecutableDir) {
			dirs = append(dirs, filepath.Join(rp, rest))
		}
	}
	dirs = append(dirs, sortedCopy(r.SystemRoots)...)
	if dlp := r.getenv("DYLD_LIBRARY_PATH"); dlp != "" {
		dirs = append(dirs, filepath.SplitList(dlp)...)
	}
	if dfp := r.getenv("DYLD_FRAMEWORK_PATH"); dfp != "" {
		dirs = append(dirs, filepath.SplitList(dfp)...)
	}
	dirs = append(dirs, "/usr/local/lib")
	return dirs
}

// expandMachORpaths substitutes @executable_path and @loader_path
// inside the importer's own declared rpaths before they are used to
// expand an @rpath/ import (spec.md §4.2).
func expandMachORpaths(rpaths []string, importerDir, mainExecDir string) []string {
	out := make([]string, 0, len(rpaths))
	for _, rp := range rpaths {
		switch {
		case strings.HasPrefix(rp, "@executable_path/"):
			rp = filepath.Join(mainExecDir, strings.TrimPrefix(rp, "@executable_path/"))
		case strings.HasPrefix(rp, "@loader_path/"):
			rp = filepath.Join(importerDir, strings.TrimPrefix(rp, "@loader_path/"))
		case !filepath.IsAbs(rp):
			rp = filepath.Join(importerDir, rp)
		}
		out = append(out, filepath.Clean(rp))
	}
	return out
}

func (r *Resolver) peCandidateDirs(importerDir string) []string {
	dirs := []string{importerDir}
	dirs = append(dirs, sortedCopy(r.SystemRoots)...)
	return dirs
}
