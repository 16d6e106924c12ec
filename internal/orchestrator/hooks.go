package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/webcamoid/DeployTools/internal/buildinfo"
	"github.com/webcamoid/DeployTools/internal/platform"
)

// EmitLauncher writes a small wrapper script at the staging root that
// points LD_LIBRARY_PATH (POSIX/Android) at LibDir before exec'ing the
// main executable, reproducing the original tool's launcher-script
// emission (SPEC_FULL.md §9).
func EmitLauncher(r *Run) error {
	if r.Settings.TargetPlatform != platform.Posix && r.Settings.TargetPlatform != platform.Android {
		return nil
	}
	relLib, err := filepath.Rel(r.DataDir, r.LibDir)
	if err != nil {
		return err
	}
	relExe, err := filepath.Rel(r.DataDir, filepath.Join(r.DataDir, r.Settings.MainExecutable))
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`#!/bin/sh
here=$(CDPATH= cd -- "$(dirname -- "$0")" && pwd)
export LD_LIBRARY_PATH="$here/%s:$LD_LIBRARY_PATH"
exec "$here/%s" "$@"
`, relLib, relExe)

	path := filepath.Join(r.DataDir, "launch.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return err
	}
	return nil
}

// EmitBuildInfo writes the build-provenance record described in
// SPEC_FULL.md §9, at "build-info.txt" in the staging root.
func EmitBuildInfo(r *Run) error {
	if r.Result == nil {
		return nil
	}
	info := buildinfo.Collect(r.Settings.SourcesDir, r.Result.Libraries)
	return buildinfo.Write(filepath.Join(r.DataDir, "build-info.txt"), info)
}
