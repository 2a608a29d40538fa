package bpfloader

import "github.com/pkg/errors"

// Sentinel errors identifying the error kinds the loader distinguishes.
// Callers use errors.Is / errors.Cause against these rather than matching on
// message text.
var (
	// ErrMalformed indicates a short read, a misshapen record array, or a
	// missing required section (license).
	ErrMalformed = errors.New("malformed object")

	// ErrUnsupported indicates an ELF object this loader does not handle (not
	// 64-bit, or not little-endian). The kernel version, build flavor and
	// architecture are not checked as run-wide preconditions; they only feed
	// per-entry gating.
	ErrUnsupported = errors.New("unsupported environment")

	// ErrPinConflict indicates an existing pinned map disagrees with the
	// shape declared by the object being loaded.
	ErrPinConflict = errors.New("pinned map is not unique")

	// ErrVerifierReject indicates the kernel refused a BPF_PROG_LOAD. For an
	// optional program the loader logs it and skips that program.
	ErrVerifierReject = errors.New("verifier rejected program")

	// ErrGatedOut names the "skip this entry" outcome. No function in this
	// package returns it: gateMap and gateProg report gating as a bool, and a
	// gated-out entry is skipped without an error.
	ErrGatedOut = errors.New("gated out by environment window")
)

// FatalError wraps a condition that must abort the entire run immediately,
// the way the loader's AOSP origin calls abort(3) on a corrupt reserved
// field. It is never returned from a function expected to recover;
// cmd/bpfloader turns it into os.Exit(2).
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Reason
}

func newFatalf(format string, args ...interface{}) error {
	return &FatalError{Reason: errors.Errorf(format, args...).Error()}
}

// IsFatal reports whether err (or one of its wrapped causes) is a FatalError.
func IsFatal(err error) bool {
	for err != nil {
		if _, ok := err.(*FatalError); ok {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
