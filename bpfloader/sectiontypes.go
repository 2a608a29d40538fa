package bpfloader

import "strings"

// ProgType mirrors the kernel's BPF_PROG_TYPE_* enumeration, scoped to the
// values this loader's section-name table can produce.
type ProgType uint32

const (
	ProgTypeUnspec ProgType = iota
	ProgTypeSocketFilter
	ProgTypeSchedCls
	ProgTypeSchedAct
	ProgTypeCgroupSkb
	ProgTypeCgroupSock
	ProgTypeLwtIn
	ProgTypeLwtOut
	ProgTypeLwtXmit
	ProgTypeSockOps
	ProgTypeSkSkb
	ProgTypeCgroupDevice
	ProgTypeSkMsg
	ProgTypeLwtSeg6Local
	ProgTypeCgroupSockAddr
	ProgTypeXDP
	ProgTypeCgroupSysctl
	ProgTypeCgroupSockopt
)

// AttachType mirrors the kernel's BPF_* attach-type enumeration. AttachNone
// is the "expected_attach_type does not apply" sentinel used in §4.2.
type AttachType uint32

const (
	AttachNone AttachType = iota
	AttachCgroupInetIngress
	AttachCgroupInetEgress
	AttachCgroupInetSockCreate
	AttachCgroupInetSockRelease
	AttachCgroupInet4Bind
	AttachCgroupInet6Bind
	AttachCgroupInet4Connect
	AttachCgroupInet6Connect
	AttachCgroupInet4PostBind
	AttachCgroupInet6PostBind
	AttachCgroupUDP4Recvmsg
	AttachCgroupUDP6Recvmsg
	AttachCgroupUDP4Sendmsg
	AttachCgroupUDP6Sendmsg
	AttachCgroupSetsockopt
	AttachCgroupGetsockopt
	AttachCgroupSysctl
)

// sectionType is one row of the prefix-matched section-name table.
type sectionType struct {
	prefix     string
	progType   ProgType
	attachType AttachType
}

// sectionTypes lists every recognized code-section name prefix. Prefixes
// must be mutually disjoint; the package init function asserts this once
// via mustDisjointPrefixes.
var sectionTypes = []sectionType{
	{"bind4/", ProgTypeCgroupSockAddr, AttachCgroupInet4Bind},
	{"bind6/", ProgTypeCgroupSockAddr, AttachCgroupInet6Bind},
	{"cgroupskb/", ProgTypeCgroupSkb, AttachNone},
	{"cgroupsockcreate/", ProgTypeCgroupSock, AttachCgroupInetSockCreate},
	{"cgroupsockrelease/", ProgTypeCgroupSock, AttachCgroupInetSockRelease},
	{"cgroupsock/", ProgTypeCgroupSock, AttachNone},
	{"connect4/", ProgTypeCgroupSockAddr, AttachCgroupInet4Connect},
	{"connect6/", ProgTypeCgroupSockAddr, AttachCgroupInet6Connect},
	{"egress/", ProgTypeCgroupSkb, AttachCgroupInetEgress},
	{"getsockopt/", ProgTypeCgroupSockopt, AttachCgroupGetsockopt},
	{"ingress/", ProgTypeCgroupSkb, AttachCgroupInetIngress},
	{"lwt_in/", ProgTypeLwtIn, AttachNone},
	{"lwt_out/", ProgTypeLwtOut, AttachNone},
	{"lwt_seg6local/", ProgTypeLwtSeg6Local, AttachNone},
	{"lwt_xmit/", ProgTypeLwtXmit, AttachNone},
	{"postbind4/", ProgTypeCgroupSock, AttachCgroupInet4PostBind},
	{"postbind6/", ProgTypeCgroupSock, AttachCgroupInet6PostBind},
	{"recvmsg4/", ProgTypeCgroupSockAddr, AttachCgroupUDP4Recvmsg},
	{"recvmsg6/", ProgTypeCgroupSockAddr, AttachCgroupUDP6Recvmsg},
	{"schedact/", ProgTypeSchedAct, AttachNone},
	{"schedcls/", ProgTypeSchedCls, AttachNone},
	{"sendmsg4/", ProgTypeCgroupSockAddr, AttachCgroupUDP4Sendmsg},
	{"sendmsg6/", ProgTypeCgroupSockAddr, AttachCgroupUDP6Sendmsg},
	{"setsockopt/", ProgTypeCgroupSockopt, AttachCgroupSetsockopt},
	{"skfilter/", ProgTypeSocketFilter, AttachNone},
	{"sockops/", ProgTypeSockOps, AttachNone},
	{"sysctl", ProgTypeCgroupSysctl, AttachCgroupSysctl},
	{"xdp/", ProgTypeXDP, AttachNone},
}

func init() {
	mustDisjointPrefixes(sectionTypes)
}

// mustDisjointPrefixes panics at init if two table rows' prefixes could
// match the same section name, since prefix-match order would then matter
// and the table's informal "order doesn't matter" assumption would be
// false.
func mustDisjointPrefixes(rows []sectionType) {
	for i, a := range rows {
		for j, b := range rows {
			if i == j {
				continue
			}
			if strings.HasPrefix(a.prefix, b.prefix) || strings.HasPrefix(b.prefix, a.prefix) {
				panic("bpfloader: section name prefixes are not disjoint: " + a.prefix + " / " + b.prefix)
			}
		}
	}
}

// classifySection resolves a section name to its (ProgType, AttachType) via
// the prefix table. ok is false for sections the table doesn't recognize —
// such sections are not code sections and are skipped by the ELF reader.
func classifySection(name string) (progType ProgType, attachType AttachType, ok bool) {
	for _, row := range sectionTypes {
		if strings.HasPrefix(name, row.prefix) {
			return row.progType, row.attachType, true
		}
	}
	return ProgTypeUnspec, AttachNone, false
}
