package bpfloader

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// contextTokenWidth bounds a selinux_context / pin_subdir wire field.
const contextTokenWidth = 32

// decodeRecords splits data into records of advertisedSize, copying each one
// into a nativeSize, default-seeded buffer before field decoding. This is
// the forward/backward-compatible struct-prefix rule from §4.2: newer
// objects may advertise a larger record (trailing fields we don't know
// about are ignored), older objects a smaller one (fields we know about but
// the file doesn't have keep their seeded defaults).
func decodeRecords(data []byte, advertisedSize, nativeSize int, seedDefaults func([]byte)) ([][]byte, error) {
	if advertisedSize <= 0 {
		return nil, errors.Wrap(ErrMalformed, "advertised record size must be positive")
	}
	if len(data)%advertisedSize != 0 {
		return nil, errors.Wrapf(ErrMalformed, "record array length %d is not a multiple of advertised size %d", len(data), advertisedSize)
	}

	n := len(data) / advertisedSize
	copyLen := advertisedSize
	if nativeSize < copyLen {
		copyLen = nativeSize
	}

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, nativeSize)
		if seedDefaults != nil {
			seedDefaults(buf)
		}
		src := data[i*advertisedSize : i*advertisedSize+copyLen]
		copy(buf, src)
		out[i] = buf
	}
	return out, nil
}

// --- MapDef wire layout -----------------------------------------------
//
// offset  size  field
//      0     4  type
//      4     4  key_size
//      8     4  value_size
//     12     4  max_entries
//     16     4  map_flags
//     20     4  uid
//     24     4  gid
//     28     4  mode
//     32     4  bpfloader_min_ver
//     36     4  bpfloader_max_ver
//     40     4  min_kver
//     44     4  max_kver
//     48     1  ignore_on_eng
//     49     1  ignore_on_user
//     50     1  ignore_on_userdebug
//     51     1  ignore_on_arm32
//     52     1  ignore_on_aarch64
//     53     1  ignore_on_x86_32
//     54     1  ignore_on_x86_64
//     55     1  ignore_on_riscv64
//     56     1  shared
//     57    32  selinux_context
//     89    32  pin_subdir
//    121     1  zero (reserved, must decode to 0)

func decodeMapDefRecord(buf []byte) MapDef {
	le := binary.LittleEndian
	d := MapDef{
		Type:         le.Uint32(buf[0:4]),
		KeySize:      le.Uint32(buf[4:8]),
		ValueSize:    le.Uint32(buf[8:12]),
		MaxEntries:   le.Uint32(buf[12:16]),
		MapFlags:     le.Uint32(buf[16:20]),
		UID:          le.Uint32(buf[20:24]),
		GID:          le.Uint32(buf[24:28]),
		Mode:         le.Uint32(buf[28:32]),
		LoaderMinVer: le.Uint32(buf[32:36]),
		LoaderMaxVer: le.Uint32(buf[36:40]),
		MinKver:      le.Uint32(buf[40:44]),
		MaxKver:      le.Uint32(buf[44:48]),

		IgnoreOnEng:       buf[48] != 0,
		IgnoreOnUser:      buf[49] != 0,
		IgnoreOnUserdebug: buf[50] != 0,
		IgnoreOnArm32:     buf[51] != 0,
		IgnoreOnAarch64:   buf[52] != 0,
		IgnoreOnX86_32:    buf[53] != 0,
		IgnoreOnX86_64:    buf[54] != 0,
		IgnoreOnRiscv64:   buf[55] != 0,
		Shared:            buf[56] != 0,

		SelinuxContext: decodeCString(buf[57:89]),
		PinSubdir:      decodeCString(buf[89:121]),
		Zero:           buf[121],
	}
	return d
}

// --- ProgDef wire layout -----------------------------------------------
//
// offset  size  field
//      0     4  min_kver
//      4     4  max_kver
//      8     4  bpfloader_min_ver
//     12     4  bpfloader_max_ver
//     16     1  ignore_on_eng
//     17     1  ignore_on_user
//     18     1  ignore_on_userdebug
//     19     1  ignore_on_arm32
//     20     1  ignore_on_aarch64
//     21     1  ignore_on_x86_32
//     22     1  ignore_on_x86_64
//     23     1  ignore_on_riscv64
//     24     1  optional
//     25    32  selinux_context
//     57    32  pin_subdir
//     89     4  uid
//     93     4  gid

func decodeProgDefRecord(buf []byte) ProgDef {
	le := binary.LittleEndian
	return ProgDef{
		MinKver:      le.Uint32(buf[0:4]),
		MaxKver:      le.Uint32(buf[4:8]),
		LoaderMinVer: le.Uint32(buf[8:12]),
		LoaderMaxVer: le.Uint32(buf[12:16]),

		IgnoreOnEng:       buf[16] != 0,
		IgnoreOnUser:      buf[17] != 0,
		IgnoreOnUserdebug: buf[18] != 0,
		IgnoreOnArm32:     buf[19] != 0,
		IgnoreOnAarch64:   buf[20] != 0,
		IgnoreOnX86_32:    buf[21] != 0,
		IgnoreOnX86_64:    buf[22] != 0,
		IgnoreOnRiscv64:   buf[23] != 0,
		Optional:          buf[24] != 0,

		SelinuxContext: decodeCString(buf[25:57]),
		PinSubdir:      decodeCString(buf[57:89]),
		UID:            le.Uint32(buf[89:93]),
		GID:            le.Uint32(buf[93:97]),
	}
}

func decodeCString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// DecodeMapDefs decodes the "maps" section into an ordered slice of MapDef,
// one per symbol in symbol-table order, per the §4.2 struct-prefix rule.
func DecodeMapDefs(data []byte, advertisedSize int, names []string) ([]MapDef, error) {
	records, err := decodeRecords(data, advertisedSize, DefaultSizeofBpfMapDef, func(buf []byte) {
		d := newMapDefDefaults()
		le := binary.LittleEndian
		le.PutUint32(buf[40:44], d.MinKver) // zero, matches default MinKver
		le.PutUint32(buf[44:48], d.MaxKver)
		le.PutUint32(buf[36:40], d.LoaderMaxVer)
	})
	if err != nil {
		return nil, err
	}
	if len(names) != len(records) {
		return nil, errors.Wrapf(ErrMalformed, "maps section has %d records but %d symbols", len(records), len(names))
	}

	defs := make([]MapDef, len(records))
	for i, rec := range records {
		d := decodeMapDefRecord(rec)
		d.Name = names[i]
		defs[i] = d
	}
	return defs, nil
}

// DecodeProgDefs decodes the "progs" section into an ordered slice of
// ProgDef, one per symbol in symbol-table order.
func DecodeProgDefs(data []byte, advertisedSize int) ([]ProgDef, error) {
	records, err := decodeRecords(data, advertisedSize, DefaultSizeofBpfProgDef, func(buf []byte) {
		d := newProgDefDefaults()
		le := binary.LittleEndian
		le.PutUint32(buf[4:8], d.MaxKver)
		le.PutUint32(buf[12:16], d.LoaderMaxVer)
	})
	if err != nil {
		return nil, err
	}

	defs := make([]ProgDef, len(records))
	for i, rec := range records {
		defs[i] = decodeProgDefRecord(rec)
	}
	return defs, nil
}

// DecodeObjectManifest reads the object-wide scalar sections (license,
// critical marker, loader-version window, advertised record widths) via r.
func DecodeObjectManifest(r *ElfReader, objectName string) (*ObjectManifest, error) {
	license, ok, err := r.SectionString("license")
	if err != nil {
		return nil, err
	}
	if !ok || license == "" {
		return nil, errors.Wrap(ErrMalformed, "object has no license section")
	}

	_, critical, err := r.SectionByName("critical")
	if err != nil {
		return nil, err
	}

	loaderMinVer, err := r.SectionUint32("bpfloader_min_ver", 0)
	if err != nil {
		return nil, err
	}
	loaderMaxVer, err := r.SectionUint32("bpfloader_max_ver", DefaultLoaderMaxVer)
	if err != nil {
		return nil, err
	}
	loaderMinRequiredVer, err := r.SectionUint32("bpfloader_min_required_ver", 0)
	if err != nil {
		return nil, err
	}
	sizeofMapDef, err := r.SectionUint32("size_of_bpf_map_def", DefaultSizeofBpfMapDef)
	if err != nil {
		return nil, err
	}
	sizeofProgDef, err := r.SectionUint32("size_of_bpf_prog_def", DefaultSizeofBpfProgDef)
	if err != nil {
		return nil, err
	}

	if sizeofMapDef < DefaultSizeofBpfMapDef {
		return nil, errors.Wrapf(ErrMalformed, "size_of_bpf_map_def %d smaller than minimum %d", sizeofMapDef, DefaultSizeofBpfMapDef)
	}
	if sizeofProgDef < DefaultSizeofBpfProgDef {
		return nil, errors.Wrapf(ErrMalformed, "size_of_bpf_prog_def %d smaller than minimum %d", sizeofProgDef, DefaultSizeofBpfProgDef)
	}

	return &ObjectManifest{
		ObjectName:           objectName,
		License:              license,
		Critical:             critical,
		LoaderMinVer:         loaderMinVer,
		LoaderMaxVer:         loaderMaxVer,
		LoaderMinRequiredVer: loaderMinRequiredVer,
		SizeofBpfMapDef:      sizeofMapDef,
		SizeofBpfProgDef:     sizeofProgDef,
	}, nil
}
