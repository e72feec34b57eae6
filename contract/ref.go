package contract

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// InterfaceRef names a versioned capability interface, written
// "namespace:package/interface@version".
type InterfaceRef struct {
	Namespace string
	Package   string
	Name      string
	Version   string
}

// ParseInterfaceRef parses "ns:pkg/name@1.2.3". The version part is optional;
// an unversioned reference matches any version of the interface.
func ParseInterfaceRef(s string) (InterfaceRef, error) {
	var ref InterfaceRef
	body := s
	if at := strings.LastIndex(s, "@"); at >= 0 {
		body, ref.Version = s[:at], s[at+1:]
		if !semver.IsValid("v" + ref.Version) {
			return InterfaceRef{}, fmt.Errorf("interface %q: invalid version %q", s, ref.Version)
		}
	}
	ns, rest, ok := strings.Cut(body, ":")
	if !ok || ns == "" {
		return InterfaceRef{}, fmt.Errorf("interface %q: missing namespace", s)
	}
	pkg, name, ok := strings.Cut(rest, "/")
	if !ok || pkg == "" || name == "" {
		return InterfaceRef{}, fmt.Errorf("interface %q: expected package/interface", s)
	}
	ref.Namespace, ref.Package, ref.Name = ns, pkg, name
	return ref, nil
}

// MustParse is ParseInterfaceRef for static tables.
func MustParse(s string) InterfaceRef {
	ref, err := ParseInterfaceRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// Key identifies the interface irrespective of version.
func (r InterfaceRef) Key() string {
	return r.Namespace + ":" + r.Package + "/" + r.Name
}

func (r InterfaceRef) String() string {
	if r.Version == "" {
		return r.Key()
	}
	return r.Key() + "@" + r.Version
}

// WithVersion returns a copy bound to the given version.
func (r InterfaceRef) WithVersion(v string) InterfaceRef {
	r.Version = v
	return r
}

// Major returns the major component as a semver major ("v1"), or "" if unversioned.
func (r InterfaceRef) Major() string {
	if r.Version == "" {
		return ""
	}
	return semver.Major("v" + r.Version)
}

// Minor returns the numeric minor version.
func (r InterfaceRef) Minor() int {
	return r.part(1)
}

// Patch returns the numeric patch version.
func (r InterfaceRef) Patch() int {
	return r.part(2)
}

func (r InterfaceRef) part(i int) int {
	if r.Version == "" {
		return 0
	}
	canon := semver.Canonical("v" + r.Version)
	canon = strings.TrimPrefix(canon, "v")
	if cut := strings.IndexAny(canon, "-+"); cut >= 0 {
		canon = canon[:cut]
	}
	parts := strings.Split(canon, ".")
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}

// Compatible reports whether provider can satisfy consumer: same interface,
// exact major, and consumer minor not newer than provider minor.
func Compatible(consumer, provider InterfaceRef) bool {
	if consumer.Key() != provider.Key() {
		return false
	}
	if consumer.Version == "" || provider.Version == "" {
		return true
	}
	if consumer.Major() != provider.Major() {
		return false
	}
	return consumer.Minor() <= provider.Minor()
}

// Prefer reports whether a is a better provider than b for the same import:
// higher minor wins, then higher patch.
func Prefer(a, b InterfaceRef) bool {
	if a.Minor() != b.Minor() {
		return a.Minor() > b.Minor()
	}
	return a.Patch() > b.Patch()
}

// Qualified is a function name scoped to an interface, written "ref#func".
type Qualified struct {
	Interface InterfaceRef
	Func      string
}

// ParseQualified splits an export or handler name of the form "ns:pkg/iface@ver#func".
func ParseQualified(s string) (Qualified, error) {
	iface, fn, ok := strings.Cut(s, "#")
	if !ok || fn == "" {
		return Qualified{}, fmt.Errorf("name %q: expected interface#function", s)
	}
	ref, err := ParseInterfaceRef(iface)
	if err != nil {
		return Qualified{}, err
	}
	return Qualified{Interface: ref, Func: fn}, nil
}

func (q Qualified) String() string {
	return q.Interface.String() + "#" + q.Func
}
