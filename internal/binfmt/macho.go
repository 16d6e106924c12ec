package binfmt

import (
	"strings"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"golang.org/x/xerrors"
)

// decodeMachO follows spec.md §4.1's Mach-O decode algorithm using
// blacktop/go-macho, the one example repo in the retrieval pack that
// exposes LC_RPATH and LC_ID_DYLIB extraction directly (the stdlib
// debug/macho package decodes load commands but drops exactly these
// two, which spec.md's Mach-O rpath/install-name handling requires).
func decodeMachO(path string) (*Binary, error) {
	f, err := macho.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("macho.Open: %w", err)
	}
	defer f.Close()

	kind := Library
	if f.FileHeader.Type == types.MH_EXECUTE {
		kind = Executable
	}

	var rpaths []string
	for _, l := range f.Loads {
		if r, ok := l.(*macho.Rpath); ok {
			rpaths = append(rpaths, r.Path)
		}
	}

	b := &Binary{
		Path:    path,
		Format:  MachO,
		Machine: uint32(f.FileHeader.CPU),
		Kind:    kind,
		Imports: f.ImportedLibraries(),
		RPaths:  rpaths,
	}
	if id := f.DylibID(); id != nil {
		b.SelfName = id.Name
	}
	return b, nil
}

// frameworkRoot collapses a path fragment like
// ".../Foo.framework/Versions/A/Foo" down to the bundle root
// ".../Foo.framework", per spec.md §4.1 and §4.4 step 4.
func frameworkRoot(path string) (string, bool) {
	const marker = ".framework"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false
	}
	return path[:idx+len(marker)], true
}
