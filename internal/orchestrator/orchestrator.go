// Package orchestrator sequences C1-C9 into the end-to-end deployment
// pass described in spec.md §4.7 and §5: pre-phase hooks, discovery
// and dependency-graph walk, staging copy, strip, permission reset,
// unneeded-file sweep, relocation, and post-phase hooks, in that
// order. Only this package decides whether
// a component failure aborts the run (spec.md §7).
package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/binfmt"
	"github.com/webcamoid/DeployTools/internal/buildinfo"
	"github.com/webcamoid/DeployTools/internal/config"
	"github.com/webcamoid/DeployTools/internal/depgraph"
	"github.com/webcamoid/DeployTools/internal/exclude"
	"github.com/webcamoid/DeployTools/internal/oninterrupt"
	"github.com/webcamoid/DeployTools/internal/platform"
	"github.com/webcamoid/DeployTools/internal/relocate"
	"github.com/webcamoid/DeployTools/internal/searchpath"
	"github.com/webcamoid/DeployTools/internal/stage"
)

// Backend is the packaging-back-end boundary spec.md §1 places out of
// scope: archive/installer/disk-image builders implement this against
// a finished staging tree, but none ship with this engine.
type Backend interface {
	Package(dataDir string) error
}

// Hook runs at a named point in the pipeline (spec.md §4.7's pre- and
// post-phase hook lists: launcher script emission, build-info
// emission, signing invocation).
type Hook func(*Run) error

// Run carries one deployment pass's resolved paths and settings.
type Run struct {
	Settings *config.Settings
	DataDir  string // staging root
	BinDir   string // absolute path to the main executable's directory
	LibDir   string // absolute path to the library directory

	ExcludeList *exclude.List
	Sweep       *config.SweepList

	PreHooks  []Hook
	PostHooks []Hook

	Verbose bool
	Backend Backend

	Result *depgraph.Result
}

// New resolves a Run's directory layout from Settings.
func New(settings *config.Settings, dataDir string) *Run {
	libDir := settings.LibDir
	if settings.TargetPlatform.LibDirIsExecDir() {
		libDir = filepath.Dir(settings.MainExecutable)
	}
	return &Run{
		Settings: settings,
		DataDir:  dataDir,
		BinDir:   filepath.Join(dataDir, filepath.Dir(settings.MainExecutable)),
		LibDir:   filepath.Join(dataDir, libDir),
	}
}

// Execute runs the full pipeline. It aborts on the first fatal error
// per spec.md §7's taxonomy; tool-invocation and resolution failures
// are handled as warnings inside the components themselves.
func (r *Run) Execute() error {
	cleanupDone := false
	oninterrupt.Register(func() {
		if !cleanupDone {
			log.Printf("orchestrator: interrupted, staging tree at %s is incomplete", r.DataDir)
		}
	})

	for _, h := range r.PreHooks {
		if err := h(r); err != nil {
			return xerrors.Errorf("pre-hook: %w", err)
		}
	}

	resolver := &searchpath.Resolver{
		Target:            r.Settings.TargetPlatform,
		MainExecutableDir: r.BinDir,
		SystemRoots:       r.Settings.ExtraSystemLibDirs,
	}

	result, err := depgraph.Walk(r.DataDir, resolver, r.ExcludeList, r.Settings.ExtraLibs)
	if err != nil {
		return xerrors.Errorf("dependency walk: %w", err)
	}
	r.Result = result

	copier := &stage.Copier{
		Target:  r.Settings.TargetPlatform,
		DataDir: r.DataDir,
		BinDir:  r.BinDir,
		LibDir:  r.LibDir,
	}
	if err := copier.CopyAll(result.Libraries); err != nil {
		return xerrors.Errorf("staging copy: %w", err)
	}

	units, err := r.relocationUnits(copier, result.Libraries)
	if err != nil {
		return xerrors.Errorf("relocation planning: %w", err)
	}

	if r.Settings.StripInRelease() {
		if err := r.strip(units); err != nil {
			log.Printf("orchestrator: strip phase reported errors: %v", err)
		}
	}

	if err := copier.ResetPermissions(r.DataDir); err != nil {
		return xerrors.Errorf("permission reset: %w", err)
	}

	if r.Sweep != nil {
		r.sweepUnwanted()
	}

	// C7 relocation is the pipeline's last mutation of the staging
	// tree (spec.md §4.7 step 7; §3/§8's "no file is modified after C7
	// returns" invariant) — strip, permission reset, and the unneeded-
	// file sweep must all have already run.
	fixer := &relocate.Fixer{Target: r.Settings.TargetPlatform, Verbose: r.Verbose}
	if err := fixer.FixAll(units); err != nil {
		return xerrors.Errorf("relocation: %w", err)
	}

	for _, h := range r.PostHooks {
		if err := h(r); err != nil {
			return xerrors.Errorf("post-hook: %w", err)
		}
	}

	cleanupDone = true
	return nil
}

// relocationUnits decodes every staged library (plus the main
// executable) into relocate.Unit values, deciding per-unit whether a
// relative $ORIGIN/@executable_path applies or a bare one — the latter
// for binaries copier repositioned under the up/ escape prefix
// (spec.md §4.6), whose distance from libDir no longer matches their
// nominal staged location.
func (r *Run) relocationUnits(copier *stage.Copier, libs []string) ([]relocate.Unit, error) {
	var units []relocate.Unit

	mainPath := filepath.Join(r.DataDir, r.Settings.MainExecutable)
	if b, ok, err := binfmt.Decode(mainPath); err == nil && ok {
		units = append(units, relocate.Unit{
			Binary:   b,
			LibDir:   r.LibDir,
			BinDir:   r.BinDir,
			Relocate: !copier.Repositioned[mainPath],
		})
	}

	for _, lib := range libs {
		staged := filepath.Join(r.LibDir, filepath.Base(lib))
		b, ok, err := binfmt.Decode(staged)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		units = append(units, relocate.Unit{
			Binary:   b,
			LibDir:   r.LibDir,
			BinDir:   r.BinDir,
			Relocate: !copier.Repositioned[staged],
		})
	}
	return units, nil
}

// strip runs the configured strip tool over every staged Binary
// concurrently, joined before the pipeline proceeds (spec.md §5,
// "Strip: one task per staged Binary, joined before proceeding").
func (r *Run) strip(units []relocate.Unit) error {
	sem := make(chan struct{}, platform.WorkerCount())
	var eg errgroup.Group
	for _, u := range units {
		u := u
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			res, err := platform.RunTool(r.Verbose, r.Settings.StripCmd, u.Binary.Path)
			if err != nil {
				return fmt.Errorf("strip %s: %w", u.Binary.Path, err)
			}
			if res.ExitCode != 0 {
				log.Printf("strip: %s exited %d: %s", u.Binary.Path, res.ExitCode, res.Stderr)
			}
			return nil
		})
	}
	return eg.Wait()
}

// sweepUnwanted removes files matched by the per-target unneeded-file
// list (spec.md §4.7 step 6 / SPEC_FULL.md §9).
func (r *Run) sweepUnwanted() {
	filepath.Walk(r.DataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if r.Sweep.Unwanted(path) {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Printf("orchestrator: sweep could not remove %s: %v", path, rmErr)
			}
		}
		return nil
	})
}
