package depgraph

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/webcamoid/DeployTools/internal/exclude"
	"github.com/webcamoid/DeployTools/internal/platform"
	"github.com/webcamoid/DeployTools/internal/searchpath"
)

// fakeELF writes a tiny ELF64 file at path that DT_NEEDEDs each of
// needs, using the same hand-rolled encoder the binfmt tests use.
func fakeELF(t *testing.T, path string, etype uint16, needs ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buildTestELF(etype, needs), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkCycle(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin", "app")
	libDir := filepath.Join(root, "lib")
	sysDir := t.TempDir()

	fakeELF(t, bin, elfExec, "libA.so")
	fakeELF(t, filepath.Join(sysDir, "libA.so"), elfDyn, "libB.so")
	fakeELF(t, filepath.Join(sysDir, "libB.so"), elfDyn, "libA.so")
	_ = libDir

	resolver := &searchpath.Resolver{Target: platform.Posix, SystemRoots: []string{sysDir}}
	res, err := Walk(root, resolver, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(sysDir, "libA.so"), filepath.Join(sysDir, "libB.so")}
	sort.Strings(want)
	if diff := cmp.Diff(want, res.Libraries); diff != "" {
		t.Errorf("cyclic closure mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkExclusionStopsFurtherWalk(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin", "app")
	sysDir := t.TempDir()

	fakeELF(t, bin, elfExec, "libc.so.6")
	fakeELF(t, filepath.Join(sysDir, "libc.so.6"), elfDyn, "libnevertouched.so")

	filter, err := exclude.Load(platform.Posix, strings.NewReader(`.*/libc\.so\..*`))
	if err != nil {
		t.Fatal(err)
	}
	resolver := &searchpath.Resolver{Target: platform.Posix, SystemRoots: []string{sysDir}}
	res, err := Walk(root, resolver, filter, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Libraries) != 0 {
		t.Errorf("expected zero staged artifacts behind an exclusion, got %v", res.Libraries)
	}
}

func TestWalkDeterministicOrdering(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin", "app")
	sysDir := t.TempDir()
	fakeELF(t, bin, elfExec, "libz.so", "liba.so", "libm.so")
	fakeELF(t, filepath.Join(sysDir, "libz.so"), elfDyn)
	fakeELF(t, filepath.Join(sysDir, "liba.so"), elfDyn)
	fakeELF(t, filepath.Join(sysDir, "libm.so"), elfDyn)

	resolver := &searchpath.Resolver{Target: platform.Posix, SystemRoots: []string{sysDir}}
	res, err := Walk(root, resolver, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sort.StringsAreSorted(res.Libraries) {
		t.Errorf("Libraries not sorted: %v", res.Libraries)
	}
}

