package bpfloader

// DefaultSizeofBpfMapDef and DefaultSizeofBpfProgDef are the record widths
// this loader was built against. Objects compiled against a newer header
// (wider records) still decode correctly via the struct-prefix rule in
// metadata.go; DecodeObjectManifest rejects an advertised width smaller
// than these.
const (
	DefaultSizeofBpfMapDef  = 122
	DefaultSizeofBpfProgDef = 97

	// DefaultLoaderMaxVer is the sentinel "no upper bound" value seeded into
	// a MapDef/ProgDef before the struct-prefix copy, so objects compiled
	// without a loader_max_ver field are never gated out by it.
	DefaultLoaderMaxVer = 0x7fffffff

	// defaultMaxKver mirrors max_kver=0xFFFFFFFF, "no upper kernel bound".
	defaultMaxKver = 0xFFFFFFFF
)

// ObjectManifest carries the object-wide metadata decoded from a single ELF
// file: license, criticality, and the loader-version window within which
// the whole object participates.
type ObjectManifest struct {
	ObjectName string
	License    string
	Critical   bool

	LoaderMinVer         uint32
	LoaderMaxVer         uint32
	LoaderMinRequiredVer uint32

	SizeofBpfMapDef  uint32
	SizeofBpfProgDef uint32
}

// InWindow reports whether loaderVersion falls in the object's half-open
// participation window.
func (m *ObjectManifest) InWindow(loaderVersion uint32) bool {
	return loaderVersion >= m.LoaderMinVer && loaderVersion < m.LoaderMaxVer
}

// MeetsMinRequired reports whether loaderVersion satisfies the object's
// inclusive minimum-required bound. Violating it is fatal, not a skip.
func (m *ObjectManifest) MeetsMinRequired(loaderVersion uint32) bool {
	return loaderVersion >= m.LoaderMinRequiredVer
}

// MapDef is one decoded entry of an object's "maps" section.
type MapDef struct {
	Name string

	Type       uint32
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   uint32

	MinKver uint32
	MaxKver uint32

	LoaderMinVer uint32
	LoaderMaxVer uint32

	SelinuxContext string
	PinSubdir      string
	Shared         bool

	Mode uint32
	UID  uint32
	GID  uint32

	IgnoreOnEng       bool
	IgnoreOnUser      bool
	IgnoreOnUserdebug bool
	IgnoreOnArm32     bool
	IgnoreOnAarch64   bool
	IgnoreOnX86_32    bool
	IgnoreOnX86_64    bool
	IgnoreOnRiscv64   bool

	// Zero must decode to 0; a nonzero value is a Fatal condition.
	Zero byte
}

func newMapDefDefaults() MapDef {
	return MapDef{
		MaxKver:      defaultMaxKver,
		LoaderMaxVer: DefaultLoaderMaxVer,
	}
}

// ProgDef is one decoded entry of an object's "progs" section, bound to a
// CodeSection by the "<symbol>_def" naming convention.
type ProgDef struct {
	MinKver uint32
	MaxKver uint32

	LoaderMinVer uint32
	LoaderMaxVer uint32

	SelinuxContext string
	PinSubdir      string

	IgnoreOnEng       bool
	IgnoreOnUser      bool
	IgnoreOnUserdebug bool
	IgnoreOnArm32     bool
	IgnoreOnAarch64   bool
	IgnoreOnX86_32    bool
	IgnoreOnX86_64    bool
	IgnoreOnRiscv64   bool

	Optional bool

	UID uint32
	GID uint32
}

func newProgDefDefaults() ProgDef {
	return ProgDef{
		MaxKver:      defaultMaxKver,
		LoaderMaxVer: DefaultLoaderMaxVer,
	}
}

// CodeSection is one program-bearing ELF section paired with its bound
// ProgDef, relocation records, and (after Program Loader runs) the kernel
// program descriptor it was loaded into.
type CodeSection struct {
	SectionName string
	PinName     string

	ProgType           ProgType
	ExpectedAttachType AttachType

	Instructions []byte
	Relocations  []elfRel

	Def *ProgDef

	// ProgFD is set once the program has been loaded or reused. Zero means
	// not yet loaded (including "gated out").
	ProgFD int
}
