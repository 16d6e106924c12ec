package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webcamoid/DeployTools/internal/config"
	"github.com/webcamoid/DeployTools/internal/exclude"
	"github.com/webcamoid/DeployTools/internal/platform"
)

func fakeELF(t *testing.T, path string, etype uint16, needs ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buildTestELF(etype, needs), 0o755); err != nil {
		t.Fatal(err)
	}
}

// TestExecuteStagesAndRelocates drives the full C5->C6->C7 pipeline
// over a fabricated staging tree and asserts the external library
// ends up copied into lib/ (spec.md §4.7; invariant 1, "closure
// completeness").
func TestExecuteStagesAndRelocates(t *testing.T) {
	dataDir := t.TempDir()
	sysDir := t.TempDir()

	fakeELF(t, filepath.Join(dataDir, "bin", "app"), elfExec, "libfoo.so.1")
	fakeELF(t, filepath.Join(sysDir, "libfoo.so.1"), elfDyn)

	settings := &config.Settings{
		TargetPlatform:     platform.Posix,
		MainExecutable:     "bin/app",
		LibDir:             "lib",
		ExtraSystemLibDirs: []string{sysDir},
		BuildType:          "Release",
	}

	run := New(settings, dataDir)
	run.ExcludeList = &exclude.List{}
	run.PostHooks = []Hook{EmitLauncher}

	if err := run.Execute(); err != nil {
		t.Fatal(err)
	}

	staged := filepath.Join(dataDir, "lib", "libfoo.so.1")
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("expected libfoo.so.1 staged into lib/: %v", err)
	}

	launcher := filepath.Join(dataDir, "launch.sh")
	data, err := os.ReadFile(launcher)
	if err != nil {
		t.Fatalf("expected launcher script: %v", err)
	}
	if !strings.Contains(string(data), "LD_LIBRARY_PATH") {
		t.Errorf("launcher script missing LD_LIBRARY_PATH export:\n%s", data)
	}
}

func TestExecuteSweepsUnwantedFiles(t *testing.T) {
	dataDir := t.TempDir()
	fakeELF(t, filepath.Join(dataDir, "bin", "app"), elfExec)

	junk := filepath.Join(dataDir, "lib", "libstatic.a")
	if err := os.MkdirAll(filepath.Dir(junk), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(junk, []byte("ar archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	sweep, err := config.ParseSweep(strings.NewReader(".a\n"))
	if err != nil {
		t.Fatal(err)
	}

	settings := &config.Settings{
		TargetPlatform: platform.Posix,
		MainExecutable: "bin/app",
		LibDir:         "lib",
		BuildType:      "Release",
	}
	run := New(settings, dataDir)
	run.ExcludeList = &exclude.List{}
	run.Sweep = sweep

	if err := run.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(junk); !os.IsNotExist(err) {
		t.Error("expected libstatic.a removed by the unneeded-files sweep")
	}
}
