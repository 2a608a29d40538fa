package bpfloader

import "github.com/pkg/errors"

// Domain identifies the selinux_context / pin_subdir token attached to a map
// or program definition. It controls which guard subdirectory under the
// bpffs root an object is pinned beneath.
type Domain int

const (
	DomainUnspecified Domain = iota
	DomainTethering
	DomainNetPrivate
	DomainNetShared
	DomainNetdReadOnly
	DomainNetdShared
	domainUnrecognized
)

// domainEntry is one row of the declarative token<->Domain table. Adding a
// new domain means extending this table only.
type domainEntry struct {
	token  string
	domain Domain
	subdir string
}

var domainTable = []domainEntry{
	{"", DomainUnspecified, ""},
	{"tethering", DomainTethering, "tethering/"},
	{"net_private", DomainNetPrivate, "net_private/"},
	{"net_shared", DomainNetShared, "net_shared/"},
	{"netd_readonly", DomainNetdReadOnly, "netd_readonly/"},
	{"netd_shared", DomainNetdShared, "netd_shared/"},
}

// lookupDomain resolves a token (taken verbatim from an ELF-embedded
// selinux_context or pin_subdir field) to a Domain. ok is false when the
// token matches no known entry.
func lookupDomain(token string) (domain Domain, subdir string, ok bool) {
	for _, e := range domainTable {
		if e.token == token {
			return e.domain, e.subdir, true
		}
	}
	return domainUnrecognized, "", false
}

// resolveSelinuxContext maps a selinux_context token to a Domain. An
// unrecognized token degrades silently to DomainUnspecified, matching the
// asymmetric fatal-vs-silent-degrade rule for selinux_context vs pin_subdir.
func resolveSelinuxContext(token string) (Domain, string) {
	d, subdir, ok := lookupDomain(token)
	if !ok {
		return DomainUnspecified, ""
	}
	return d, subdir
}

// resolvePinSubdir maps a pin_subdir token to a Domain. An unrecognized
// token is fatal for the owning object.
func resolvePinSubdir(token string) (Domain, string, error) {
	d, subdir, ok := lookupDomain(token)
	if !ok {
		return domainUnrecognized, "", errors.Errorf("unrecognized pin_subdir %q", token)
	}
	return d, subdir, nil
}
