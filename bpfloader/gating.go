package bpfloader

// gateMap reports whether a MapDef is skipped (not failed) in env, per
// §4.3. Skipped entries are retained as null placeholders by the caller so
// index-based relocation resolution stays aligned.
func gateMap(d *MapDef, env *EnvSnapshot) bool {
	if env.LoaderVersion < d.LoaderMinVer || env.LoaderVersion >= d.LoaderMaxVer {
		return true
	}
	if env.KernelVersion < d.MinKver || env.KernelVersion >= d.MaxKver {
		return true
	}
	if flavorGated(env.BuildFlavor, d.IgnoreOnEng, d.IgnoreOnUser, d.IgnoreOnUserdebug) {
		return true
	}
	if archGated(env, d.IgnoreOnArm32, d.IgnoreOnAarch64, d.IgnoreOnX86_32, d.IgnoreOnX86_64, d.IgnoreOnRiscv64) {
		return true
	}
	return false
}

// gateProg reports whether a ProgDef is skipped, the program analogue of
// gateMap.
func gateProg(d *ProgDef, env *EnvSnapshot) bool {
	if env.LoaderVersion < d.LoaderMinVer || env.LoaderVersion >= d.LoaderMaxVer {
		return true
	}
	if env.KernelVersion < d.MinKver || env.KernelVersion >= d.MaxKver {
		return true
	}
	if flavorGated(env.BuildFlavor, d.IgnoreOnEng, d.IgnoreOnUser, d.IgnoreOnUserdebug) {
		return true
	}
	if archGated(env, d.IgnoreOnArm32, d.IgnoreOnAarch64, d.IgnoreOnX86_32, d.IgnoreOnX86_64, d.IgnoreOnRiscv64) {
		return true
	}
	return false
}

func flavorGated(flavor BuildFlavor, ignoreEng, ignoreUser, ignoreUserdebug bool) bool {
	switch flavor {
	case FlavorEng:
		return ignoreEng
	case FlavorUser:
		return ignoreUser
	case FlavorUserdebug:
		return ignoreUserdebug
	default:
		return false
	}
}

// archGated evaluates the arch+bitness ignore flags against the probed
// environment. arm32/aarch64 both fall under ArchARM, distinguished by
// kernel bitness (not userspace bitness: a 32-bit userspace commonly runs
// on a 64-bit kernel, and it's the kernel's word size that decides which
// variant of a program or map applies); x86_32/x86_64 likewise under ArchX86.
func archGated(env *EnvSnapshot, ignoreArm32, ignoreAarch64, ignoreX86_32, ignoreX86_64, ignoreRiscv64 bool) bool {
	switch env.Arch {
	case ArchARM:
		if !env.IsKernel64Bit {
			return ignoreArm32
		}
		return ignoreAarch64
	case ArchX86:
		if !env.IsKernel64Bit {
			return ignoreX86_32
		}
		return ignoreX86_64
	case ArchRISCV:
		return ignoreRiscv64
	default:
		return false
	}
}
