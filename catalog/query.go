package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// ObjectQuery selects objects. Resources are exact ids, or regular
// expressions when Pattern is set; an object matching any of them is kept
// if it also carries every Metadata "key=value" pair.
type ObjectQuery struct {
	Resources []string
	Pattern   bool
	Metadata  []string

	// Deprecated adds deprecated generations to the live ones.
	Deprecated bool

	// StatusMask keeps objects whose status bit is set, 0 keeps all.
	StatusMask ObjectStatus

	Sort *Sort
}

// LayoutQuery selects layouts by object id and by medium name.
type LayoutQuery struct {
	Resources []string
	Pattern   bool
	// Medium keeps layouts with an extent on a medium whose name contains it.
	Medium string
}

// MediumQuery selects media usable for a write.
type MediumQuery struct {
	Family    resource.Family
	Tags      []string
	Library   string
	AdmStatus AdmStatus
}

type idMatcher struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

func newIDMatcher(resources []string, pattern bool) (*idMatcher, error) {
	m := new(idMatcher)
	if len(resources) == 0 {
		return m, nil
	}

	if !pattern {
		m.exact = make(map[string]struct{}, len(resources))
		for _, r := range resources {
			m.exact[r] = struct{}{}
		}
		return m, nil
	}

	for _, r := range resources {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern '%s': %v", hsmerr.ErrInvalidArgument, r, err)
		}
		m.patterns = append(m.patterns, re)
	}

	return m, nil
}

func (m *idMatcher) match(id string) bool {
	if m.exact == nil && m.patterns == nil {
		return true
	}

	if _, ok := m.exact[id]; ok {
		return true
	}

	for _, re := range m.patterns {
		if re.MatchString(id) {
			return true
		}
	}

	return false
}

// ParseMetadata splits "key=value" filters.
func ParseMetadata(filters []string) (map[string]string, error) {
	res := make(map[string]string, len(filters))
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: metadata filter '%s' is not key=value", hsmerr.ErrInvalidArgument, f)
		}
		res[k] = v
	}

	return res, nil
}

// Matcher compiles the query into a predicate.
func (q *ObjectQuery) Matcher() (func(*Object) bool, error) {
	ids, err := newIDMatcher(q.Resources, q.Pattern)
	if err != nil {
		return nil, err
	}

	md, err := ParseMetadata(q.Metadata)
	if err != nil {
		return nil, err
	}

	return func(o *Object) bool {
		if o.Deprecated() && !q.Deprecated {
			return false
		}
		if q.StatusMask != 0 && o.Status&q.StatusMask == 0 {
			return false
		}
		if !ids.match(o.OID) {
			return false
		}
		for k, v := range md {
			if o.UserMD[k] != v {
				return false
			}
		}
		return true
	}, nil
}

// Matcher compiles the query into a predicate.
func (q *LayoutQuery) Matcher() (func(*Layout) bool, error) {
	ids, err := newIDMatcher(q.Resources, q.Pattern)
	if err != nil {
		return nil, err
	}

	return func(l *Layout) bool {
		if !ids.match(l.OID) {
			return false
		}
		if q.Medium == "" {
			return true
		}
		for _, ext := range l.Extents {
			if strings.Contains(ext.Medium.Name, q.Medium) {
				return true
			}
		}
		return false
	}, nil
}

// Match reports whether m satisfies the query.
func (q *MediumQuery) Match(m *Medium) bool {
	if q.Family != resource.FamilyUnspecified && m.ID.Family != q.Family {
		return false
	}
	if q.Library != "" && m.Library != q.Library {
		return false
	}
	if q.AdmStatus != "" && m.AdmStatus != q.AdmStatus {
		return false
	}

	return m.HasTags(q.Tags)
}
