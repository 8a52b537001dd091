package local

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"go.uber.org/zap"
)

// Delete implements objects.Engine.
func (e *Engine) Delete(ctx context.Context, batch []*xfer.Descriptor) error {
	return forEach(batch, nil, func(d *xfer.Descriptor) error {
		if d.Flags&xfer.FlagHardDelete == 0 {
			return e.cat.DeleteObject(ctx, d.OID, false)
		}

		layouts, err := e.cat.ListLayouts(ctx, catalog.LayoutQuery{Resources: []string{d.OID}})
		if err != nil {
			return err
		}
		if err := e.cat.DeleteObject(ctx, d.OID, true); err != nil {
			return err
		}

		for i := range layouts {
			for j := range layouts[i].Extents {
				ext := &layouts[i].Extents[j]
				if ext.Medium.Family != resource.FamilyDir {
					continue
				}
				if err := os.Remove(extentPath(ext)); err != nil && !os.IsNotExist(err) {
					e.log.Warn("could not remove extent", zap.String("oid", d.OID),
						zap.String("path", extentPath(ext)), zap.Error(err))
				}
			}
		}
		return nil
	})
}

// Undelete implements objects.Engine.
func (e *Engine) Undelete(ctx context.Context, batch []*xfer.Descriptor) error {
	return forEach(batch, nil, func(d *xfer.Descriptor) error {
		return e.cat.UndeleteObject(ctx, d.OID, d.UUID)
	})
}

// Rename implements objects.Engine.
func (e *Engine) Rename(ctx context.Context, oldOID, uuid, newOID string) error {
	return e.cat.RenameObject(ctx, oldOID, uuid, newOID)
}

// Locate implements objects.Engine.
func (e *Engine) Locate(ctx context.Context, oid, uuid string, version int, focusHost string) (string, int, error) {
	obj, err := e.cat.FindObject(ctx, oid, uuid, version)
	if err != nil {
		return "", 0, err
	}

	layout, err := e.findLayout(ctx, obj)
	if err != nil {
		return "", 0, err
	}

	return e.locate(ctx, layout, focusHost)
}

// locate picks the host serving layout for the requester (focusHost, this
// host when empty). The empty name means the requester is this host and
// can serve it. A remote requester gets a medium locked for it, the number
// of locks taken is returned. When every replica is held by other hosts the
// holder of the first one is returned.
func (e *Engine) locate(ctx context.Context, layout *catalog.Layout, focusHost string) (string, int, error) {
	if len(layout.Extents) == 0 {
		return "", 0, fmt.Errorf("%w: '%s' has no extent", syscall.ENOENT, layout.OID)
	}

	requester := focusHost
	if requester == "" {
		requester = e.cfg.Hostname
	}

	var (
		holder string
		free   *catalog.Medium
	)
	for i := range layout.Extents {
		m, err := e.cat.GetMedium(ctx, layout.Extents[i].Medium)
		if err != nil {
			return "", 0, err
		}

		switch {
		case m.Lock.Hostname == requester:
			return e.hostFor(requester), 0, nil
		case !m.Lock.Held():
			if free == nil {
				free = m
			}
		case holder == "":
			holder = m.Lock.Hostname
		}
	}

	if free == nil {
		return holder, 0, nil
	}

	if requester == e.cfg.Hostname {
		return "", 0, nil
	}

	owner := catalog.Lock{Hostname: requester}
	if err := e.cat.Lock(ctx, catalog.KindMedium, []resource.ID{free.ID}, owner, false); err != nil {
		return "", 0, err
	}

	e.log.Info("medium locked for remote host",
		zap.Stringer("medium", free.ID), zap.String("host", requester), zap.String("oid", layout.OID))

	return requester, 1, nil
}

func (e *Engine) hostFor(host string) string {
	if host == e.cfg.Hostname {
		return ""
	}

	return host
}
