package bpfloader

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func baseEnv() *EnvSnapshot {
	return &EnvSnapshot{
		KernelVersion:    5<<16 | 10<<8,
		Arch:             ArchARM,
		IsUserspace32Bit: false,
		BuildFlavor:      FlavorUser,
		LoaderVersion:    42,
	}
}

func TestGateMapLoaderWindow(t *testing.T) {
	env := baseEnv()
	d := newMapDefDefaults()
	d.LoaderMinVer = 43

	qt.Assert(t, qt.IsTrue(gateMap(&d, env)))

	env.LoaderVersion = 43
	qt.Assert(t, qt.IsFalse(gateMap(&d, env)))
}

func TestGateMapKernelWindow(t *testing.T) {
	env := baseEnv()
	d := newMapDefDefaults()
	d.MinKver = 5 << 16 // 5.0.0
	d.MaxKver = 6 << 16 // exclusive upper bound

	qt.Assert(t, qt.IsFalse(gateMap(&d, env))) // 5.10.0 is in [5.0.0, 6.0.0)

	env.KernelVersion = 6<<16 | 1<<8
	qt.Assert(t, qt.IsTrue(gateMap(&d, env)))
}

func TestGateMapIgnoreOnFlavor(t *testing.T) {
	env := baseEnv()
	d := newMapDefDefaults()
	d.IgnoreOnUser = true

	qt.Assert(t, qt.IsTrue(gateMap(&d, env)))

	env.BuildFlavor = FlavorEng
	qt.Assert(t, qt.IsFalse(gateMap(&d, env)))
}

func TestGateMapIgnoreOnArch(t *testing.T) {
	env := baseEnv()
	env.Arch = ArchARM
	env.IsKernel64Bit = false
	d := newMapDefDefaults()
	d.IgnoreOnArm32 = true

	qt.Assert(t, qt.IsTrue(gateMap(&d, env)))

	env.IsKernel64Bit = true
	qt.Assert(t, qt.IsFalse(gateMap(&d, env)))
}

func TestGateMapIgnoreOnArchUsesKernelNotUserspaceBitness(t *testing.T) {
	// A 32-bit userspace running on a 64-bit kernel must be treated as the
	// aarch64 variant, not arm32.
	env := baseEnv()
	env.Arch = ArchARM
	env.IsKernel64Bit = true
	env.IsUserspace32Bit = true
	d := newMapDefDefaults()
	d.IgnoreOnArm32 = true
	d.IgnoreOnAarch64 = false

	qt.Assert(t, qt.IsFalse(gateMap(&d, env)))
}

func TestGateProgOptionalSurvivesGating(t *testing.T) {
	env := baseEnv()
	d := newProgDefDefaults()
	d.Optional = true
	qt.Assert(t, qt.IsFalse(gateProg(&d, env)))
}
