package admin

import (
	"context"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
)

// LayoutParams filter a layout listing.
type LayoutParams struct {
	Resources []string
	Pattern   bool
	Medium    string
	// Degroup splits every layout into one record per extent.
	Degroup bool
}

// LayoutList is a listing owned by the engine until Release. Degrouped
// records share extent storage with the raw records and become invalid with
// them.
type LayoutList struct {
	raw      []catalog.Layout
	view     []catalog.Layout
	free     func([]catalog.Layout)
	released bool
}

// Records returns the listed layouts, nil once released.
func (l *LayoutList) Records() []catalog.Layout {
	if l.released {
		return nil
	}

	return l.view
}

// Release hands the raw records back to the engine.
func (l *LayoutList) Release() {
	if l.released {
		return
	}

	l.released = true
	l.free(l.raw)
	l.raw, l.view = nil, nil
}

// Degroup returns one single-extent record per extent whose medium name
// contains medium (every extent when empty). Records borrow their extent from
// layouts.
func Degroup(layouts []catalog.Layout, medium string) []catalog.Layout {
	var res []catalog.Layout
	for i := range layouts {
		exts := layouts[i].Extents
		for j := range exts {
			if !strings.Contains(exts[j].Medium.Name, medium) {
				continue
			}

			l := layouts[i]
			l.ExtentCount = 1
			l.Extents = exts[j : j+1 : j+1]
			res = append(res, l)
		}
	}

	return res
}

// LayoutList lists the layouts matching p.
func (c *Client) LayoutList(ctx context.Context, p LayoutParams) (*LayoutList, error) {
	q := catalog.LayoutQuery{Resources: p.Resources, Pattern: p.Pattern, Medium: p.Medium}

	raw, err := c.handle.ListLayouts(ctx, q)
	if err != nil {
		return nil, hsmerr.NewEngineError("layout list", "", err)
	}

	list := &LayoutList{raw: raw, view: raw, free: c.handle.FreeLayouts}
	if p.Degroup {
		list.view = Degroup(raw, p.Medium)
	}

	return list, nil
}
