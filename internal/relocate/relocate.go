// Package relocate implements C7: rewriting embedded library-search
// metadata in staged binaries so they resolve their dependencies
// relative to the staging tree at runtime, per spec.md §4.6.
package relocate

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/binfmt"
	"github.com/webcamoid/DeployTools/internal/platform"
)

// Unit is one staged binary to relocate, together with the bundle
// layout needed to compute its relative path back to the library
// directory.
type Unit struct {
	Binary   *binfmt.Binary
	LibDir   string
	BinDir   string // absolute path to the main executable's directory; anchors Mach-O @executable_path
	Relocate bool   // false for files repositioned under up/: they get a bare $ORIGIN / @executable_path
}

// Fixer rewrites staged binaries for Target using external patchelf
// (ELF) or install_name_tool (Mach-O). PE needs no rewrite
// (spec.md §4.6, Target.NeedsRelocation).
type Fixer struct {
	Target  platform.Target
	Verbose bool

	logMu sync.Mutex
}

// FixAll relocates every unit concurrently, bounded by
// platform.WorkerCount, mirroring distri's worker-channel pool
// (cmd/distri-checkupstream/checkupstream.go).
func (f *Fixer) FixAll(units []Unit) error {
	if !f.Target.NeedsRelocation() {
		return nil
	}

	sem := make(chan struct{}, platform.WorkerCount())
	var eg errgroup.Group
	for _, u := range units {
		u := u
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := f.fix(u); err != nil {
				return xerrors.Errorf("relocate %s: %w", u.Binary.Path, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (f *Fixer) fix(u Unit) error {
	switch f.Target {
	case platform.Posix, platform.Android:
		return f.fixELF(u)
	case platform.Mac:
		return f.fixMachO(u)
	default:
		return nil
	}
}

func (f *Fixer) logf(format string, args ...interface{}) {
	f.logMu.Lock()
	defer f.logMu.Unlock()
	log.Printf(format, args...)
}

// fixELF sets DT_RUNPATH to an $ORIGIN-relative path pointing back at
// the library directory via patchelf. Missing patchelf degrades to a
// warning, not a fatal error (an Open Question resolved in
// SPEC_FULL.md: relocation is best-effort when the tool is absent).
func (f *Fixer) fixELF(u Unit) error {
	if !platform.HasTool("patchelf") {
		f.logf("relocate: patchelf not found on PATH, leaving %s unrelocated", u.Binary.Path)
		return nil
	}

	runpath := "$ORIGIN"
	if u.Relocate {
		rel, err := filepath.Rel(filepath.Dir(u.Binary.Path), u.LibDir)
		if err != nil {
			return err
		}
		if rel != "." {
			runpath = "$ORIGIN/" + filepath.ToSlash(rel)
		}
	}

	res, err := platform.RunTool(f.Verbose, "patchelf", "--set-rpath", runpath, u.Binary.Path)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		f.logf("relocate: patchelf failed on %s (exit %d): %s", u.Binary.Path, res.ExitCode, res.Stderr)
	}
	return nil
}

// fixMachO rewrites LC_RPATH entries, @rpath-relative dependency
// references, and (for libraries) the install name via
// install_name_tool, per spec.md §4.6's Mach-O algorithm. The new
// rpath is anchored at the main executable's directory via
// @executable_path (cf. the original DTMac.py:64
// os.path.join('@executable_path', os.path.relpath(libDir, binDir))),
// not at each binary's own directory — a library staged several
// directories below the executable still needs a path back from
// binDir, the same anchor every other binary in the tree shares.
func (f *Fixer) fixMachO(u Unit) error {
	if !platform.HasTool("install_name_tool") {
		f.logf("relocate: install_name_tool not found on PATH, leaving %s unrelocated", u.Binary.Path)
		return nil
	}

	newRpath := "@executable_path"
	if u.Relocate {
		rel, err := filepath.Rel(u.BinDir, u.LibDir)
		if err != nil {
			return err
		}
		if rel != "." {
			newRpath = "@executable_path/" + filepath.ToSlash(rel)
		}
	}

	run := func(args ...string) error {
		res, err := platform.RunTool(f.Verbose, "install_name_tool", append(args, u.Binary.Path)...)
		if err == nil && res.ExitCode != 0 {
			f.logf("relocate: install_name_tool %v failed on %s (exit %d): %s", args, u.Binary.Path, res.ExitCode, res.Stderr)
		}
		return err
	}

	for _, old := range u.Binary.RPaths {
		if err := run("-delete_rpath", old); err != nil {
			return err
		}
	}
	if err := run("-add_rpath", newRpath); err != nil {
		return err
	}

	for _, imp := range u.Binary.Imports {
		if !isRpathRelative(imp) {
			continue
		}
		var rewritten string
		if inFramework, ok := frameworkRelative(imp); ok {
			rewritten = fmt.Sprintf("%s/%s", newRpath, inFramework)
		} else {
			rewritten = fmt.Sprintf("@rpath/%s", filepath.Base(imp))
		}
		if err := run("-change", imp, rewritten); err != nil {
			return err
		}
	}

	if u.Binary.Kind == binfmt.Library && u.Binary.SelfName != "" {
		newID := fmt.Sprintf("@rpath/%s", filepath.Base(u.Binary.SelfName))
		if err := run("-id", newID); err != nil {
			return err
		}
	}
	return nil
}

func isRpathRelative(name string) bool {
	return len(name) > 0 && name[0] != '@' && name[0] != '/'
}

// frameworkRelative reports the portion of a Mach-O import path from
// its "Name.framework" component onward (e.g.
// "/Library/Frameworks/Qux.framework/Versions/A/Qux" ->
// "Qux.framework/Versions/A/Qux"), matching DTMac.py's inFrameworkPath
// treatment of framework imports as a unit distinct from plain dylibs.
func frameworkRelative(path string) (string, bool) {
	const marker = ".framework"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false
	}
	start := strings.LastIndex(path[:idx], "/") + 1
	return path[start:], true
}
