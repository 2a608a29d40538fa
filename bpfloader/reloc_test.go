package bpfloader

import (
	"encoding/binary"
	"testing"

	"github.com/go-quicktest/qt"
)

func ldImmDWInsn(fd uint32) []byte {
	insn := make([]byte, 16) // a BPF_LD|BPF_IMM|BPF_DW load is 2 slots wide
	insn[0] = bpfLdImmDW
	insn[1] = 0x03 // dst_reg = R3 (low nibble), src_reg = 0 (high nibble), pre-relocation
	binary.LittleEndian.PutUint32(insn[4:8], fd)
	return insn
}

func TestApplyRelocationsSplicesMapFD(t *testing.T) {
	cs := &CodeSection{
		SectionName:  "ingress/foo",
		Instructions: ldImmDWInsn(0),
		Relocations:  []elfRel{{Offset: 0, Info: uint64(1) << 32}},
	}
	maps := []ResolvedMap{{Name: "my_map", FD: 7}}

	err := ApplyRelocations(cs, []string{"my_map"}, maps, func(idx uint32) (string, error) {
		qt.Assert(t, qt.Equals(idx, uint32(1)))
		return "my_map", nil
	}, nil)

	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(binary.LittleEndian.Uint32(cs.Instructions[4:8]), uint32(7)))
	// src_reg (high nibble) must become BPF_PSEUDO_MAP_FD; dst_reg (low
	// nibble) must be left untouched.
	qt.Assert(t, qt.Equals(cs.Instructions[1]>>4, uint8(bpfPseudoMapFD)))
	qt.Assert(t, qt.Equals(cs.Instructions[1]&0x0f, uint8(0x03)))
}

func TestApplyRelocationsSkipsNonMapLoadOpcode(t *testing.T) {
	insns := ldImmDWInsn(0)
	insns[0] = 0x07 // BPF_ALU64|BPF_ADD|BPF_K, not a map load
	cs := &CodeSection{
		SectionName:  "ingress/foo",
		Instructions: insns,
		Relocations:  []elfRel{{Offset: 0, Info: uint64(1) << 32}},
	}
	maps := []ResolvedMap{{Name: "my_map", FD: 7}}

	err := ApplyRelocations(cs, []string{"my_map"}, maps, func(idx uint32) (string, error) {
		return "my_map", nil
	}, nil)

	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(binary.LittleEndian.Uint32(cs.Instructions[4:8]), uint32(0)))
}

func TestApplyRelocationsRejectsGatedOutMap(t *testing.T) {
	cs := &CodeSection{
		SectionName:  "ingress/foo",
		Instructions: ldImmDWInsn(0),
		Relocations:  []elfRel{{Offset: 0, Info: uint64(1) << 32}},
	}
	maps := []ResolvedMap{{Name: "my_map", Skipped: true}}

	err := ApplyRelocations(cs, []string{"my_map"}, maps, func(idx uint32) (string, error) {
		return "my_map", nil
	}, nil)

	qt.Assert(t, qt.IsNotNil(err))
}
