package binfmt

import (
	"debug/pe"

	"golang.org/x/xerrors"
)

// decodePE follows spec.md §4.1's PE/COFF decode algorithm on top of
// the standard library's debug/pe, mirroring the same justification as
// decodeELF: no third-party PE parser appears anywhere in the
// retrieved pack, and debug/pe already walks the import directory the
// same way spec.md describes (data directory entry 1, section lookup
// by RVA, null-terminated ASCII names).
func decodePE(path string) (*Binary, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("pe.Open: %w", err)
	}
	defer f.Close()

	imports, err := f.ImportedLibraries()
	if err != nil {
		return nil, xerrors.Errorf("ImportedLibraries: %w", err)
	}

	kind := Executable
	if f.Characteristics&imageFileDLL != 0 {
		kind = Library
	}

	return &Binary{
		Path:    path,
		Format:  PE,
		Machine: uint32(f.Machine),
		Kind:    kind,
		Imports: imports,
	}, nil
}

// imageFileDLL is IMAGE_FILE_DLL from the PE COFF header
// Characteristics field; debug/pe does not export it.
const imageFileDLL = 0x2000
