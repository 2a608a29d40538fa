package bpfloader

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// bpfInsnSize is sizeof(struct bpf_insn): 8 bytes per eBPF instruction.
const bpfInsnSize = 8

// Opcodes this package must recognize to apply a map-fd relocation.
const (
	bpfLdImmDW     = 0x18 // BPF_LD | BPF_IMM | BPF_DW
	bpfPseudoMapFD = 1    // BPF_PSEUDO_MAP_FD, src_reg value for a map-fd load
)

// ApplyRelocations rewrites cs's instruction stream in place, splicing the
// file descriptor of each referenced map into the corresponding 64-bit
// immediate-load instruction, per §4.5. mapNames gives the symbol name for
// each entry in maps (same order), so a relocation's symbol index can be
// resolved to a ResolvedMap.
func ApplyRelocations(cs *CodeSection, mapNames []string, maps []ResolvedMap, symbolName func(index uint32) (string, error), log Logger) error {
	if len(cs.Relocations) == 0 {
		return nil
	}

	insns := cs.Instructions
	for _, rel := range cs.Relocations {
		if rel.Offset%bpfInsnSize != 0 {
			return errors.Wrapf(ErrMalformed, "relocation offset %d is not instruction-aligned", rel.Offset)
		}
		insnIdx := int(rel.Offset / bpfInsnSize)
		if insnIdx < 0 || (insnIdx+1)*bpfInsnSize > len(insns) {
			return errors.Wrapf(ErrMalformed, "relocation offset %d out of range", rel.Offset)
		}

		opcode := insns[insnIdx*bpfInsnSize]
		if opcode != bpfLdImmDW {
			if log != nil {
				log.Warnf("section %s: relocation at offset %d targets non-map-load opcode 0x%x, skipping", cs.SectionName, rel.Offset, opcode)
			}
			continue
		}

		symName, err := symbolName(rel.symIndex())
		if err != nil {
			return errors.Wrapf(err, "section %s: resolve relocation symbol", cs.SectionName)
		}

		mapIdx := -1
		for i, name := range mapNames {
			if name == symName {
				mapIdx = i
				break
			}
		}
		if mapIdx == -1 {
			return errors.Wrapf(ErrMalformed, "section %s: relocation references unknown map %q", cs.SectionName, symName)
		}
		if maps[mapIdx].Skipped {
			return errors.Wrapf(ErrMalformed, "section %s: relocation references gated-out map %q", cs.SectionName, symName)
		}

		// src_reg occupies the high nibble of the byte following the opcode
		// (dst_reg is the low nibble); set it to BPF_PSEUDO_MAP_FD so the
		// verifier treats the immediate as a map fd rather than a literal
		// constant.
		insns[insnIdx*bpfInsnSize+1] = (insns[insnIdx*bpfInsnSize+1] &^ 0xf0) | (bpfPseudoMapFD << 4)
		binary.LittleEndian.PutUint32(insns[insnIdx*bpfInsnSize+4:insnIdx*bpfInsnSize+8], uint32(maps[mapIdx].FD))
	}

	return nil
}
