package bpfloader

import (
	"encoding/binary"
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// buildMapRecord encodes a single MapDef record at exactly
// DefaultSizeofBpfMapDef bytes, matching the layout documented in
// metadata.go.
func buildMapRecord(typ, keySize, valueSize, maxEntries, flags uint32) []byte {
	buf := make([]byte, DefaultSizeofBpfMapDef)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], typ)
	le.PutUint32(buf[4:8], keySize)
	le.PutUint32(buf[8:12], valueSize)
	le.PutUint32(buf[12:16], maxEntries)
	le.PutUint32(buf[16:20], flags)
	le.PutUint32(buf[44:48], defaultMaxKver)
	le.PutUint32(buf[36:40], DefaultLoaderMaxVer)
	return buf
}

func TestDecodeMapDefsExactSize(t *testing.T) {
	rec := buildMapRecord(mapTypeHash, 4, 8, 16, 0)
	defs, err := DecodeMapDefs(rec, DefaultSizeofBpfMapDef, []string{"my_map"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(defs), 1))
	qt.Assert(t, qt.Equals(defs[0].Name, "my_map"))
	qt.Assert(t, qt.Equals(defs[0].Type, uint32(mapTypeHash)))
	qt.Assert(t, qt.Equals(defs[0].KeySize, uint32(4)))
	qt.Assert(t, qt.Equals(defs[0].ValueSize, uint32(8)))
	qt.Assert(t, qt.Equals(defs[0].MaxEntries, uint32(16)))
}

func TestDecodeMapDefsLargerAdvertisedSizeIsTrimmed(t *testing.T) {
	rec := buildMapRecord(mapTypeHash, 4, 8, 16, 0)
	// A newer compiler advertises a wider record; the trailing bytes (which
	// this loader doesn't know about) must be ignored, not misread as the
	// next record.
	rec = append(rec, make([]byte, 16)...)

	defs, err := DecodeMapDefs(rec, DefaultSizeofBpfMapDef+16, []string{"my_map"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(defs), 1))
	qt.Assert(t, qt.Equals(defs[0].KeySize, uint32(4)))
}

func TestDecodeMapDefsSmallerAdvertisedSizeKeepsDefaults(t *testing.T) {
	// An older object advertises a record smaller than this loader's
	// native size; fields past the advertised width keep their seeded
	// defaults (max_kver = 0xFFFFFFFF) rather than reading garbage.
	small := buildMapRecord(mapTypeHash, 4, 8, 16, 0)[:40]

	defs, err := DecodeMapDefs(small, 40, []string{"my_map"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(defs[0].MaxKver, uint32(defaultMaxKver)))
}

func TestDecodeMapDefsRejectsNonMultipleLength(t *testing.T) {
	rec := buildMapRecord(mapTypeHash, 4, 8, 16, 0)[:DefaultSizeofBpfMapDef-1]
	_, err := DecodeMapDefs(rec, DefaultSizeofBpfMapDef, []string{"my_map"})
	qt.Assert(t, qt.IsNotNil(err))
}

func TestDecodeMapDefsMismatchedSymbolCount(t *testing.T) {
	rec := buildMapRecord(mapTypeHash, 4, 8, 16, 0)
	_, err := DecodeMapDefs(rec, DefaultSizeofBpfMapDef, []string{"a", "b"})
	qt.Assert(t, qt.IsNotNil(err))
}

func TestDecodeMapDefsFullShape(t *testing.T) {
	rec := buildMapRecord(mapTypeHash, 4, 8, 16, 0)
	defs, err := DecodeMapDefs(rec, DefaultSizeofBpfMapDef, []string{"my_map"})
	qt.Assert(t, qt.IsNil(err))

	want := MapDef{
		Name:         "my_map",
		Type:         mapTypeHash,
		KeySize:      4,
		ValueSize:    8,
		MaxEntries:   16,
		MaxKver:      defaultMaxKver,
		LoaderMaxVer: DefaultLoaderMaxVer,
	}

	// SelinuxContext/PinSubdir decode to "" for an all-zero record; ignore
	// the Zero reserved-byte field, which is irrelevant to shape comparison.
	diff := cmp.Diff(want, defs[0], cmpopts.IgnoreFields(MapDef{}, "Zero"))
	qt.Assert(t, qt.Equals(diff, ""))
}
