package bpfloader

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Kernel map type numbers this loader needs to reason about, matching
// include/uapi/linux/bpf.h's bpf_map_type enum.
const (
	mapTypeHash       = 1
	mapTypeArray      = 2
	mapTypeDevmap     = 14
	mapTypeDevmapHash = 25
	mapTypeRingbuf    = 27
)

// programReadOnlyFlag is BPF_F_RDONLY_PROG, set on devmap/devmap_hash maps
// to match the kernel's own initialization of these types.
const programReadOnlyFlag = 1 << 7

// versionGate4_14 and versionGate5_4 are packed kernel versions used by the
// type-substitution and equivalence-check rules below.
var (
	versionGate4_14 = uint32(4<<16 | 14<<8)
	versionGate5_4  = uint32(5<<16 | 4<<8)
	versionGate4_15 = uint32(4<<16 | 15<<8)
)

// effectiveMapShape is the kernel-version-adjusted (type, flags, max
// entries) a MapDef resolves to, per §4.4 steps 2-4.
type effectiveMapShape struct {
	Type       uint32
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   uint32
}

func deriveEffectiveShape(d *MapDef, kernelVersion uint32, pageSize uint32) effectiveMapShape {
	t := d.Type
	flags := d.MapFlags
	maxEntries := d.MaxEntries

	switch t {
	case mapTypeDevmap:
		if kernelVersion < versionGate4_14 {
			t = mapTypeArray
		} else {
			flags |= programReadOnlyFlag
		}
	case mapTypeDevmapHash:
		if kernelVersion < versionGate5_4 {
			t = mapTypeHash
		} else {
			flags |= programReadOnlyFlag
		}
	case mapTypeRingbuf:
		if maxEntries < pageSize {
			maxEntries = pageSize
		} else if maxEntries%pageSize != 0 {
			maxEntries = ((maxEntries / pageSize) + 1) * pageSize
		}
	}

	return effectiveMapShape{
		Type:       t,
		KeySize:    d.KeySize,
		ValueSize:  d.ValueSize,
		MaxEntries: maxEntries,
		MapFlags:   flags,
	}
}

// ResolvedMap is the outcome of running a single MapDef through the Map
// Manager: either a live file descriptor (created or reused) or Skipped
// when the gating engine excluded it.
type ResolvedMap struct {
	Name    string
	FD      int
	Skipped bool
	PinPath string
}

// MapManager creates or reuses kernel maps for a single object and pins
// them, enforcing the equivalence invariant from §4.4 on reuse.
type MapManager struct {
	Env        *EnvSnapshot
	BPFFSRoot  string
	PageSize   uint32
	ObjectName string
	Log        Logger
}

// CreateMaps resolves every MapDef in defs, in order, to a ResolvedMap.
// Skipped entries keep a null FD (0 is never a valid fd the kernel hands
// back for a freshly opened map from bpf(2), so it is used as the sentinel)
// so relocation index arithmetic in reloc.go stays aligned with defs.
func (m *MapManager) CreateMaps(defs []MapDef) ([]ResolvedMap, error) {
	out := make([]ResolvedMap, len(defs))
	for i := range defs {
		d := &defs[i]

		if gateMap(d, m.Env) {
			out[i] = ResolvedMap{Name: d.Name, Skipped: true}
			continue
		}

		if d.Zero != 0 {
			return nil, newFatalf("map %s: reserved field is nonzero (%d)", d.Name, d.Zero)
		}

		resolved, err := m.createOrReuseOne(d)
		if err != nil {
			return nil, errors.Wrapf(err, "map %s", d.Name)
		}
		out[i] = resolved
	}
	return out, nil
}

func (m *MapManager) createOrReuseOne(d *MapDef) (ResolvedMap, error) {
	shape := deriveEffectiveShape(d, m.Env.KernelVersion, m.PageSize)

	_, subdirFromSelinux := resolveSelinuxContext(d.SelinuxContext)
	_, subdirFromPin, err := resolvePinSubdir(d.PinSubdir)
	if err != nil {
		return ResolvedMap{}, err
	}

	subdir := subdirFromPin
	if subdir == "" {
		subdir = subdirFromSelinux
	}

	namePart := d.Name
	if !d.Shared {
		namePart = m.ObjectName + "_" + d.Name
	} else {
		namePart = "_" + d.Name
	}
	pinPath := filepath.Join(m.BPFFSRoot, subdir, "map_"+namePart)

	if fd, ok, err := getPinned(pinPath); err != nil {
		return ResolvedMap{}, err
	} else if ok {
		if m.Env.KernelVersion >= versionGate4_14 {
			if err := mapMatchesExpectations(fd, shape); err != nil {
				return ResolvedMap{}, errors.Wrapf(ErrPinConflict, "%s: %s", pinPath, err)
			}
		}
		return ResolvedMap{Name: d.Name, FD: fd, PinPath: pinPath}, nil
	}

	createName := d.Name
	if m.Env.KernelVersion < versionGate4_15 {
		createName = ""
	}
	fd, err := createMap(shape.Type, shape.KeySize, shape.ValueSize, shape.MaxEntries, shape.MapFlags, createName)
	if err != nil {
		return ResolvedMap{}, err
	}

	var tmpPath string
	if subdirFromSelinux != "" {
		tmpPath = tmpMapPath(filepath.Join(m.BPFFSRoot, subdirFromSelinux), m.ObjectName, d.Name)
		if err := ensurePinDir(filepath.Dir(tmpPath)); err != nil {
			return ResolvedMap{}, err
		}
	}
	if err := pinAtomic(tmpPath, pinPath, fd); err != nil {
		return ResolvedMap{}, err
	}

	if err := chmodChown(pinPath, d.Mode, d.UID, d.GID); err != nil {
		return ResolvedMap{}, err
	}

	return ResolvedMap{Name: d.Name, FD: fd, PinPath: pinPath}, nil
}

// mapMatchesExpectations enforces the §4.4 equivalence invariant: a reused
// pinned map must exactly match the type/key/value/entries/flags this
// object declares. Mismatch surfaces as ErrPinConflict ("not unique").
func mapMatchesExpectations(fd int, want effectiveMapShape) error {
	got, err := getMapSpecByFD(fd)
	if err != nil {
		return errors.Wrap(err, "query pinned map info")
	}
	if got.Type != want.Type || got.KeySize != want.KeySize ||
		got.ValueSize != want.ValueSize || got.MaxEntries != want.MaxEntries ||
		got.MapFlags != want.MapFlags {
		return errors.Errorf("existing map %+v does not match declared %+v", got, want)
	}
	return nil
}
