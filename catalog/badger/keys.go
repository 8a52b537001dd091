package badger

import (
	"fmt"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// Key namespaces, all values are JSON:
//
//	obj:<oid>                 live object generation
//	dep:<uuid>:<version>      deprecated object generation
//	lyt:<uuid>:<version>      layout of one generation
//	dev:<family>:<name>       device
//	med:<family>:<name>       medium
const (
	prefixObject     = "obj:"
	prefixDeprecated = "dep:"
	prefixLayout     = "lyt:"
	prefixDevice     = "dev:"
	prefixMedium     = "med:"
)

func keyObject(oid string) []byte {
	return []byte(prefixObject + oid)
}

// Versions are zero-padded so that a prefix scan returns them in order.
func keyDeprecated(uuid string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixDeprecated, uuid, version))
}

func keyDeprecatedPrefix(uuid string) []byte {
	return []byte(prefixDeprecated + uuid + ":")
}

func keyLayout(uuid string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixLayout, uuid, version))
}

func keyLayoutPrefix(uuid string) []byte {
	return []byte(prefixLayout + uuid + ":")
}

func keyResourcePrefix(kind catalog.Kind) string {
	if kind == catalog.KindDevice {
		return prefixDevice
	}

	return prefixMedium
}

func keyResource(kind catalog.Kind, id resource.ID) []byte {
	return []byte(keyResourcePrefix(kind) + id.Family.String() + ":" + id.Name)
}

func keyResourceFamilyPrefix(kind catalog.Kind, family resource.Family) []byte {
	if family == resource.FamilyUnspecified {
		return []byte(keyResourcePrefix(kind))
	}

	return []byte(keyResourcePrefix(kind) + family.String() + ":")
}
