package orchestrator

import "encoding/binary"

// buildTestELF hand-encodes a minimal ELF64 file with the given
// DT_NEEDED entries, duplicated locally per package from
// internal/depgraph's and internal/binfmt's identical fixture builders
// (test helpers aren't exported across package boundaries).
const (
	elfExec = 2 // ET_EXEC
	elfDyn  = 3 // ET_DYN
)

func buildTestELF(etype uint16, needs []string) []byte {
	dynstr := []byte{0}
	offsets := make([]uint64, len(needs))
	for i, n := range needs {
		offsets[i] = uint64(len(dynstr))
		dynstr = append(dynstr, append([]byte(n), 0)...)
	}

	dynData := make([]byte, 0, (len(needs)+1)*16)
	for _, off := range offsets {
		entry := make([]byte, 16)
		binary.LittleEndian.PutUint64(entry[0:], 1) // DT_NEEDED
		binary.LittleEndian.PutUint64(entry[8:], off)
		dynData = append(dynData, entry...)
	}
	dynData = append(dynData, make([]byte, 16)...) // DT_NULL

	shstrtab := []byte{0}
	nameDynstr := len(shstrtab)
	shstrtab = append(shstrtab, append([]byte(".dynstr"), 0)...)
	nameDynamic := len(shstrtab)
	shstrtab = append(shstrtab, append([]byte(".dynamic"), 0)...)
	nameShstrtab := len(shstrtab)
	shstrtab = append(shstrtab, append([]byte(".shstrtab"), 0)...)

	const ehsize = 64
	const shentsize = 64
	dynstrOff := uint64(ehsize)
	dynamicOff := dynstrOff + uint64(len(dynstr))
	shstrtabOff := dynamicOff + uint64(len(dynData))
	shoff := shstrtabOff + uint64(len(shstrtab))

	sections := []struct {
		name, typ, link uint32
		offset, size    uint64
	}{
		{0, 0, 0, 0, 0},
		{uint32(nameDynstr), 3, 0, dynstrOff, uint64(len(dynstr))},
		{uint32(nameDynamic), 6, 1, dynamicOff, uint64(len(dynData))},
		{uint32(nameShstrtab), 3, 0, shstrtabOff, uint64(len(shstrtab))},
	}

	out := make([]byte, ehsize)
	copy(out[0:4], []byte{0x7f, 'E', 'L', 'F'})
	out[4], out[5], out[6] = 2, 1, 1
	binary.LittleEndian.PutUint16(out[16:], etype)
	binary.LittleEndian.PutUint16(out[18:], 62) // EM_X86_64
	binary.LittleEndian.PutUint32(out[20:], 1)
	binary.LittleEndian.PutUint64(out[40:], shoff)
	binary.LittleEndian.PutUint16(out[52:], ehsize)
	binary.LittleEndian.PutUint16(out[58:], shentsize)
	binary.LittleEndian.PutUint16(out[60:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(out[62:], 3)

	out = append(out, dynstr...)
	out = append(out, dynData...)
	out = append(out, shstrtab...)
	for _, s := range sections {
		sh := make([]byte, shentsize)
		binary.LittleEndian.PutUint32(sh[0:], s.name)
		binary.LittleEndian.PutUint32(sh[4:], s.typ)
		binary.LittleEndian.PutUint32(sh[40:], s.link)
		binary.LittleEndian.PutUint64(sh[24:], s.offset)
		binary.LittleEndian.PutUint64(sh[32:], s.size)
		out = append(out, sh...)
	}
	return out
}
