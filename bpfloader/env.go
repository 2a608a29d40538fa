package bpfloader

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/netprep/bpfloader/internal/kernelver"
)

// Arch identifies the CPU architecture bucket used by ignore_on_* gating.
type Arch string

const (
	ArchARM   Arch = "arm"
	ArchX86   Arch = "x86"
	ArchRISCV Arch = "riscv"
	ArchOther Arch = "other"
)

// BuildFlavor identifies the build-type bucket used by ignore_on_* gating.
type BuildFlavor string

const (
	FlavorEng       BuildFlavor = "eng"
	FlavorUser      BuildFlavor = "user"
	FlavorUserdebug BuildFlavor = "userdebug"
	FlavorUnknown   BuildFlavor = "unknown"
)

// LoaderVersionBaseline is the lowest loader_version this implementation
// ever reports, mirroring the AOSP invariant loader_version >= 42.
const LoaderVersionBaseline = 42

// EnvSnapshot is the immutable picture of the running environment every
// gating decision is made against. It is probed once per run.
type EnvSnapshot struct {
	KernelVersion     uint32
	IsKernel64Bit     bool
	IsUserspace32Bit  bool
	Arch              Arch
	BuildFlavor       BuildFlavor
	EffectiveAPILevel uint32
	RunningAsRoot     bool
	LoaderVersion     uint32
}

// BuildFlavorFunc supplies the active build flavor. Reading the actual
// property store is an external collaborator; the default implementation
// reads an environment variable so the core package never hardcodes a
// platform-specific property API.
type BuildFlavorFunc func() string

// DefaultBuildFlavorFunc reads BPFLOADER_BUILD_FLAVOR, falling back to
// "user" — the most restrictive flavor — when unset.
func DefaultBuildFlavorFunc() string {
	if v := os.Getenv("BPFLOADER_BUILD_FLAVOR"); v != "" {
		return v
	}
	return "user"
}

// APILevelFunc supplies the effective API level used to derive
// loader_version. The default returns LoaderVersionBaseline (42) as the API
// level, which is at or above every threshold in loaderVersionTable, so the
// derived loader_version is LoaderVersionBaseline+4 (one more when running
// as root); embedding systems with a real property source override this.
type APILevelFunc func() uint32

func defaultAPILevelFunc() uint32 { return LoaderVersionBaseline }

func parseBuildFlavor(s string) BuildFlavor {
	switch s {
	case "eng":
		return FlavorEng
	case "user":
		return FlavorUser
	case "userdebug":
		return FlavorUserdebug
	default:
		return FlavorUnknown
	}
}

func archFromGOARCH(goarch string) Arch {
	switch goarch {
	case "arm", "arm64":
		return ArchARM
	case "386", "amd64":
		return ArchX86
	case "riscv64":
		return ArchRISCV
	default:
		return ArchOther
	}
}

// loaderVersionTable maps an API-level threshold plus the root bit to a
// loader_version, generalizing the original's hardcoded per-release
// increments into a small ordered table.
var loaderVersionTable = []struct {
	minAPILevel uint32
	version     uint32
}{
	{0, LoaderVersionBaseline},
	{31, LoaderVersionBaseline + 1},
	{33, LoaderVersionBaseline + 2},
	{34, LoaderVersionBaseline + 3},
	{35, LoaderVersionBaseline + 4},
}

func deriveLoaderVersion(apiLevel uint32, runningAsRoot bool) uint32 {
	v := uint32(LoaderVersionBaseline)
	for _, row := range loaderVersionTable {
		if apiLevel >= row.minAPILevel {
			v = row.version
		}
	}
	if runningAsRoot {
		v++
	}
	return v
}

// ProbeEnvironment builds an EnvSnapshot from the live system. Passing nil
// for either function uses the defaults above.
func ProbeEnvironment(buildFlavor BuildFlavorFunc, apiLevel APILevelFunc) (*EnvSnapshot, error) {
	if buildFlavor == nil {
		buildFlavor = DefaultBuildFlavorFunc
	}
	if apiLevel == nil {
		apiLevel = defaultAPILevelFunc
	}

	kver, err := kernelver.Current()
	if err != nil {
		return nil, errors.Wrap(err, "probe kernel version")
	}
	is64, err := kernelver.Is64BitKernel()
	if err != nil {
		return nil, errors.Wrap(err, "probe kernel bitness")
	}

	level := apiLevel()
	root := os.Geteuid() == 0

	return &EnvSnapshot{
		KernelVersion:     kver,
		IsKernel64Bit:     is64,
		IsUserspace32Bit:  unsafe.Sizeof(uintptr(0)) == 4,
		Arch:              archFromGOARCH(runtime.GOARCH),
		BuildFlavor:       parseBuildFlavor(buildFlavor()),
		EffectiveAPILevel: level,
		RunningAsRoot:     root,
		LoaderVersion:     deriveLoaderVersion(level, root),
	}, nil
}
