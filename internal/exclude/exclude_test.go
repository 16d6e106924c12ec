package exclude

import (
	"strings"
	"testing"

	"github.com/webcamoid/DeployTools/internal/platform"
)

func TestExcludesGlibcVariants(t *testing.T) {
	l, err := Load(platform.Posix, strings.NewReader(`
# glibc core libraries must never be bundled
.*/libc\.so\..*
.*/ld-linux.*\.so.* # dynamic linker itself
`))
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"/usr/lib/libc.so.6":          true,
		"/lib/x86_64/ld-linux-x86-64.so.2": true,
		"/usr/lib/libfoo.so.1":        false,
	}
	for path, want := range cases {
		if got := l.Excludes(path); got != want {
			t.Errorf("Excludes(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWindowsCaseAndSeparatorNormalization(t *testing.T) {
	l, err := Load(platform.Windows, strings.NewReader(`c:/windows/system32/kernel32\.dll`))
	if err != nil {
		t.Fatal(err)
	}
	if !l.Excludes(`C:\Windows\System32\KERNEL32.DLL`) {
		t.Error("expected case-insensitive, separator-normalized match")
	}
}

func TestLoadFileMissingIsEmptyNotError(t *testing.T) {
	l, err := LoadFile(platform.Posix, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if l.Excludes("/anything") {
		t.Error("empty list must exclude nothing")
	}
}

func TestCommentOnlyAndBlankLinesIgnored(t *testing.T) {
	l, err := Load(platform.Posix, strings.NewReader("\n  \n# just a comment\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.patterns) != 0 {
		t.Errorf("expected zero patterns, got %d", len(l.patterns))
	}
}
