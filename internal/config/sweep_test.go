package config

import (
	"strings"
	"testing"
)

func TestSweepUnwantedSuffixAndDirectory(t *testing.T) {
	l, err := ParseSweep(strings.NewReader(`
# static archives and import libs never belong in a bundle
.a
.prl
Headers
`))
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"/stage/lib/libfoo.a":                    true,
		"/stage/lib/libfoo.prl":                  true,
		"/stage/Frameworks/Qux.framework/Headers/qux.h": true,
		"/stage/lib/libfoo.so.1":                 false,
	}
	for path, want := range cases {
		if got := l.Unwanted(path); got != want {
			t.Errorf("Unwanted(%q) = %v, want %v", path, got, want)
		}
	}
}
