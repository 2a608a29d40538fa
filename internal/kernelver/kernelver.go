// Package kernelver packs a running kernel's release string into the
// major<<16 + minor<<8 + patch integer form used throughout the loader for
// version-window comparisons.
package kernelver

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var releaseRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+).*$`)

// FromRelease converts a release string with format 4.4.2[-1] to a packed
// version number. For kernel "a.b.c" the result is a<<16 + b<<8 + c.
func FromRelease(release string) (uint32, error) {
	parts := releaseRegex.FindStringSubmatch(release)
	if len(parts) != 4 {
		return 0, errors.Errorf("unrecognized kernel release %q", release)
	}

	major, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.Wrap(err, "major version")
	}
	minor, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, errors.Wrap(err, "minor version")
	}
	patch, err := strconv.Atoi(parts[3])
	if err != nil {
		return 0, errors.Wrap(err, "patch version")
	}

	return uint32(major<<16 | minor<<8 | patch), nil
}

// Current reads the running kernel's release string via uname(2) and packs
// it.
func Current() (uint32, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return 0, errors.Wrap(err, "uname")
	}
	return FromRelease(unix.ByteSliceToString(uname.Release[:]))
}

// Is64BitKernel reports whether the running kernel is 64-bit, independent of
// the bitness of this process. A 32-bit userspace can run on a 64-bit
// kernel, so this is read from uname's machine field rather than unsafe.Sizeof.
func Is64BitKernel() (bool, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false, errors.Wrap(err, "uname")
	}
	machine := unix.ByteSliceToString(uname.Machine[:])
	switch machine {
	case "x86_64", "aarch64", "riscv64", "ppc64", "ppc64le", "s390x":
		return true, nil
	default:
		return false, nil
	}
}
