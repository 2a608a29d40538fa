package bpfloader

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestObjectName(t *testing.T) {
	cases := map[string]string{
		"netd.o":        "netd",
		"netd@sdk30.o":  "netd",
		"clatd.v2@36.o": "clatd.v2",
		"no_extension":  "no_extension",
	}
	for in, want := range cases {
		qt.Assert(t, qt.Equals(ObjectName(in), want))
	}
}

func TestPinNameForSection(t *testing.T) {
	qt.Assert(t, qt.Equals(pinNameForSection("schedcls/ingress/tc_prog"), "schedcls_ingress_tc_prog"))
	qt.Assert(t, qt.Equals(pinNameForSection("xdp/prog$4.9"), "xdp_prog"))
}
