package bpfloader

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestClassifySection(t *testing.T) {
	cases := []struct {
		name       string
		wantOK     bool
		progType   ProgType
		attachType AttachType
	}{
		{"ingress/foo", true, ProgTypeCgroupSkb, AttachCgroupInetIngress},
		{"xdp/bar", true, ProgTypeXDP, AttachNone},
		{"schedcls/ingress/tc_prog", true, ProgTypeSchedCls, AttachNone},
		{"sysctl", true, ProgTypeCgroupSysctl, AttachCgroupSysctl},
		{"not_a_program_section", false, ProgTypeUnspec, AttachNone},
	}

	for _, c := range cases {
		progType, attachType, ok := classifySection(c.name)
		qt.Assert(t, qt.Equals(ok, c.wantOK))
		if !c.wantOK {
			continue
		}
		qt.Assert(t, qt.Equals(progType, c.progType))
		qt.Assert(t, qt.Equals(attachType, c.attachType))
	}
}

func TestSectionPrefixesAreDisjoint(t *testing.T) {
	// mustDisjointPrefixes already ran at package init; this test documents
	// the invariant and would fail loudly (via panic) if it didn't hold.
	qt.Assert(t, qt.IsTrue(len(sectionTypes) > 0))
}
