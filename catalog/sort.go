package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
)

// Kind is a kind of catalog record.
type Kind string

const (
	KindObject     Kind = "object"
	KindDeprecated Kind = "deprecated_object"
	KindLayout     Kind = "layout"
	KindDevice     Kind = "device"
	KindMedium     Kind = "media"
)

var sortFields = map[Kind][]string{
	KindObject:     {"oid", "uuid", "version", "size", "grouping", "creation_time", "access_time"},
	KindDeprecated: {"oid", "uuid", "version", "size", "grouping", "creation_time", "access_time", "deprec_time"},
	KindLayout:     {"oid", "uuid", "version", "layout_name"},
	KindDevice:     {"family", "name", "host", "adm_status"},
	KindMedium:     {"family", "name", "adm_status", "fs_status", "library"},
}

// Sort orders a result set on one field of a record kind.
type Sort struct {
	Kind    Kind
	Field   string
	Reverse bool
}

// NewSort validates field against the fields recognized for kind.
func NewSort(kind Kind, field string, reverse bool) (*Sort, error) {
	fields, ok := sortFields[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown record kind '%s'", hsmerr.ErrInvalidArgument, kind)
	}

	field = strings.ToLower(field)
	for _, f := range fields {
		if f == field {
			return &Sort{Kind: kind, Field: field, Reverse: reverse}, nil
		}
	}

	return nil, fmt.Errorf("%w: invalid sort field '%s' for %s, expected one of: %s",
		hsmerr.ErrInvalidArgument, field, kind, strings.Join(fields, ", "))
}

func compareObjects(a, b *Object, field string) int {
	switch field {
	case "uuid":
		return strings.Compare(a.UUID, b.UUID)
	case "version":
		return a.Version - b.Version
	case "size":
		return cmpInt64(a.Size, b.Size)
	case "grouping":
		return strings.Compare(a.Grouping, b.Grouping)
	case "creation_time":
		return a.CreationTime.Compare(b.CreationTime)
	case "access_time":
		return a.AccessTime.Compare(b.AccessTime)
	case "deprec_time":
		switch {
		case a.DeprecTime == nil && b.DeprecTime == nil:
			return 0
		case a.DeprecTime == nil:
			return 1
		case b.DeprecTime == nil:
			return -1
		}
		return a.DeprecTime.Compare(*b.DeprecTime)
	default:
		return strings.Compare(a.OID, b.OID)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortObjects orders objs by s, by (oid, version) when s is nil.
func SortObjects(objs []Object, s *Sort) {
	field, reverse := "oid", false
	if s != nil {
		field, reverse = s.Field, s.Reverse
	}

	sort.SliceStable(objs, func(i, j int) bool {
		c := compareObjects(&objs[i], &objs[j], field)
		if c == 0 && field == "oid" {
			c = objs[i].Version - objs[j].Version
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
}

// SortLayouts orders layouts by (oid, version).
func SortLayouts(layouts []Layout) {
	sort.SliceStable(layouts, func(i, j int) bool {
		if layouts[i].OID != layouts[j].OID {
			return layouts[i].OID < layouts[j].OID
		}
		return layouts[i].Version < layouts[j].Version
	})
}
