// Package resource names the physical resources the HSM manages: families of
// devices and media, filesystem types and (family, name) identities.
package resource

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
)

// Family is a class of media and devices.
type Family int

const (
	// FamilyUnspecified lets the engine choose.
	FamilyUnspecified Family = iota
	FamilyTape
	FamilyDir
	FamilyRadosPool
)

var familyNames = map[Family]string{
	FamilyTape:      "tape",
	FamilyDir:       "dir",
	FamilyRadosPool: "rados_pool",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}

	return "unspecified"
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	_, ok := familyNames[f]
	return ok
}

// ParseFamily resolves a family name, case-insensitively. An empty name is
// FamilyUnspecified.
func ParseFamily(name string) (Family, error) {
	if name == "" {
		return FamilyUnspecified, nil
	}

	lower := strings.ToLower(name)
	for f, n := range familyNames {
		if n == lower {
			return f, nil
		}
	}

	return FamilyUnspecified, fmt.Errorf("%w: unknown resource family '%s'", hsmerr.ErrInvalidArgument, name)
}

// FSType is the filesystem a medium is formatted with.
type FSType int

const (
	FSPosix FSType = iota
	FSLTFS
	FSRados
)

func (t FSType) String() string {
	switch t {
	case FSPosix:
		return "POSIX"
	case FSLTFS:
		return "LTFS"
	case FSRados:
		return "RADOS"
	default:
		return "UNKNOWN"
	}
}

// ID addresses a device or a medium.
type ID struct {
	Family Family `json:"family"`
	Name   string `json:"name"`
}

func (id ID) String() string {
	return id.Family.String() + ":" + id.Name
}

// IDs builds one ID per name, all in the same family.
func IDs(family Family, names []string) []ID {
	ids := make([]ID, 0, len(names))
	for _, name := range names {
		ids = append(ids, ID{Family: family, Name: name})
	}

	return ids
}

// Names returns the names of ids joined for messages.
func Names(ids []ID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name)
	}

	return strings.Join(names, ", ")
}
