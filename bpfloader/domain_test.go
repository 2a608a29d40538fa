package bpfloader

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestResolveSelinuxContextUnrecognizedDegradesSilently(t *testing.T) {
	d, subdir := resolveSelinuxContext("totally_bogus")
	qt.Assert(t, qt.Equals(d, DomainUnspecified))
	qt.Assert(t, qt.Equals(subdir, ""))
}

func TestResolvePinSubdirUnrecognizedIsFatal(t *testing.T) {
	_, _, err := resolvePinSubdir("totally_bogus")
	qt.Assert(t, qt.IsNotNil(err))
}

func TestResolvePinSubdirKnownTokens(t *testing.T) {
	d, subdir, err := resolvePinSubdir("tethering")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(d, DomainTethering))
	qt.Assert(t, qt.Equals(subdir, "tethering/"))
}
