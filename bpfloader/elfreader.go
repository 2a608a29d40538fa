package bpfloader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// elfRel mirrors Elf64_Rel: a relocation record with no addend, one per
// eBPF map-descriptor load that needs fixing up.
type elfRel struct {
	Offset uint64
	Info   uint64
}

func (r elfRel) symIndex() uint32 { return uint32(r.Info >> 32) }

const relRecordSize = 16 // sizeof(Elf64_Rel)

// ElfReader is a random-access reader over a 64-bit little-endian ELF
// relocatable object, built on debug/elf the way the teacher's
// internal.SafeELFFile wraps it: debug/elf has known panics on malformed
// input, so NewElfReader recovers from a panic while parsing and turns it
// into an error. The other methods do not recover.
type ElfReader struct {
	file *elf.File
}

// NewElfReader opens and safely parses an ELF from r.
func NewElfReader(r io.ReaderAt) (reader *ElfReader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reader = nil
			err = errors.Errorf("reading ELF panicked: %v", rec)
		}
	}()

	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse ELF header")
	}
	if f.Class != elf.ELFCLASS64 {
		return nil, errors.Wrap(ErrUnsupported, "only 64-bit ELF objects are supported")
	}
	if f.ByteOrder != binary.LittleEndian {
		return nil, errors.Wrap(ErrUnsupported, "only little-endian ELF objects are supported")
	}

	return &ElfReader{file: f}, nil
}

// SectionByName returns the raw bytes of the first section named exactly
// name. ok is false when no such section exists — a soft condition the
// caller may treat as "use a default" rather than an error.
func (r *ElfReader) SectionByName(name string) (data []byte, ok bool, err error) {
	sec := r.file.Section(name)
	if sec == nil {
		return nil, false, nil
	}
	data, err = sec.Data()
	if err != nil {
		return nil, false, errors.Wrapf(err, "read section %q", name)
	}
	return data, true, nil
}

// SectionUint32 decodes the first 4 bytes of section name as a
// little-endian uint32. If the section is absent, def is returned instead.
func (r *ElfReader) SectionUint32(name string, def uint32) (uint32, error) {
	data, ok, err := r.SectionByName(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if len(data) < 4 {
		return 0, errors.Wrapf(ErrMalformed, "section %q shorter than 4 bytes", name)
	}
	return binary.LittleEndian.Uint32(data[:4]), nil
}

// SectionString decodes section name as a NUL-terminated (or plain) string.
// ok is false when the section is absent.
func (r *ElfReader) SectionString(name string) (value string, ok bool, err error) {
	data, ok, err := r.SectionByName(name)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(bytes.TrimRight(data, "\x00")), true, nil
}

// CodeSections returns every section whose name classifies as a program
// section (§4.2's prefix table), together with any relocation section
// immediately following it in section-header order. This mirrors the
// original loader's adjacency assumption: a `.rel<name>` section is only
// recognized when the linker emitted it directly after its target.
func (r *ElfReader) CodeSections() ([]*CodeSection, error) {
	var out []*CodeSection

	sections := r.file.Sections
	for idx, sec := range sections {
		progType, attachType, ok := classifySection(sec.Name)
		if !ok {
			continue
		}

		insns, err := sec.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "read code section %q", sec.Name)
		}

		cs := &CodeSection{
			SectionName:        sec.Name,
			PinName:            pinNameForSection(sec.Name),
			ProgType:           progType,
			ExpectedAttachType: attachType,
			Instructions:       insns,
		}

		relName := ".rel" + sec.Name
		if idx+1 < len(sections) && sections[idx+1].Name == relName {
			relData, err := sections[idx+1].Data()
			if err != nil {
				return nil, errors.Wrapf(err, "read relocation section %q", relName)
			}
			rels, err := decodeRelocations(relData)
			if err != nil {
				return nil, errors.Wrapf(err, "decode relocations for %q", sec.Name)
			}
			cs.Relocations = rels
		}

		out = append(out, cs)
	}

	return out, nil
}

func decodeRelocations(data []byte) ([]elfRel, error) {
	if len(data)%relRecordSize != 0 {
		return nil, errors.Wrapf(ErrMalformed, "relocation section length %d is not a multiple of %d", len(data), relRecordSize)
	}
	n := len(data) / relRecordSize
	rels := make([]elfRel, n)
	for i := 0; i < n; i++ {
		rec := data[i*relRecordSize:]
		rels[i] = elfRel{
			Offset: binary.LittleEndian.Uint64(rec[0:8]),
			Info:   binary.LittleEndian.Uint64(rec[8:16]),
		}
	}
	return rels, nil
}

// SymbolNames returns, in symbol-table order, the name of every symbol
// defined against sectionName. When funcOnly is set, only STT_FUNC symbols
// are considered, matching the original's getSectionSymNames behavior for
// code sections.
func (r *ElfReader) SymbolNames(sectionName string, funcOnly bool) ([]string, error) {
	syms, err := r.file.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrap(err, "read symbol table")
	}

	target := r.file.Section(sectionName)
	if target == nil {
		return nil, nil
	}
	targetIdx := r.sectionIndex(target)

	var names []string
	for _, sym := range syms {
		if int(sym.Section) != targetIdx {
			continue
		}
		if funcOnly && elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		names = append(names, sym.Name)
	}
	return names, nil
}

func (r *ElfReader) sectionIndex(target *elf.Section) int {
	for i, s := range r.file.Sections {
		if s == target {
			return i
		}
	}
	return -1
}

// SymbolName resolves a symbol table index (as encoded in a relocation's
// r_info) to its name.
func (r *ElfReader) SymbolName(index uint32) (string, error) {
	syms, err := r.file.Symbols()
	if err != nil {
		return "", errors.Wrap(err, "read symbol table")
	}
	// debug/elf's Symbols() drops the null first symtab entry, matching the
	// 1-based indexing convention of ELF64_R_SYM.
	if index == 0 || int(index) > len(syms) {
		return "", errors.Errorf("symbol index %d out of range", index)
	}
	return syms[index-1].Name, nil
}

// ObjectName derives the pin-friendly object name from an ELF file's base
// name: strip a trailing ".o", then strip any "@suffix" from what remains.
func ObjectName(fileBaseName string) string {
	name := fileBaseName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[:i]
	}
	return name
}

// pinNameForSection derives a program's pin name from its section name:
// slashes become underscores and any "$variant" suffix is dropped, so
// distinct ELF symbols for the same logical program collapse to one pin
// name (only one variant is expected to survive gating).
func pinNameForSection(sectionName string) string {
	name := sectionName
	if i := strings.LastIndex(name, "$"); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "/", "_")
}
