package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"go.uber.org/zap"
)

// findLayout returns the layout of one object generation.
func (e *Engine) findLayout(ctx context.Context, obj *catalog.Object) (*catalog.Layout, error) {
	layouts, err := e.cat.ListLayouts(ctx, catalog.LayoutQuery{Resources: []string{obj.OID}})
	if err != nil {
		return nil, err
	}

	for i := range layouts {
		if layouts[i].UUID == obj.UUID && layouts[i].Version == obj.Version {
			return &layouts[i], nil
		}
	}

	return nil, fmt.Errorf("%w: no layout for '%s' version %d", syscall.ENOENT, obj.OID, obj.Version)
}

// fillMD copies object metadata into the descriptor.
func fillMD(d *xfer.Descriptor, obj *catalog.Object) error {
	md, err := attrs.FromMap(obj.UserMD)
	if err != nil {
		return err
	}

	d.Attrs = *md
	d.OID, d.UUID, d.Version = obj.OID, obj.UUID, obj.Version
	if p := d.Get(); p != nil {
		p.Size = obj.Size
	}

	return nil
}

// GetMD implements xfer.Engine.
func (e *Engine) GetMD(ctx context.Context, batch []*xfer.Descriptor, done xfer.CompletionFunc) error {
	return forEach(batch, done, func(d *xfer.Descriptor) error {
		obj, err := e.cat.FindObject(ctx, d.OID, d.UUID, d.Version)
		if err != nil {
			return err
		}

		return fillMD(d, obj)
	})
}

// Get implements xfer.Engine.
func (e *Engine) Get(ctx context.Context, batch []*xfer.Descriptor, done xfer.CompletionFunc) error {
	if err := e.checkOnline(); err != nil {
		return err
	}

	return forEach(batch, done, func(d *xfer.Descriptor) error {
		err := e.get(ctx, d)
		if err != nil {
			e.log.Debug("get failed", zap.String("oid", d.ID()), zap.Error(err))
		}
		return err
	})
}

func (e *Engine) get(ctx context.Context, d *xfer.Descriptor) error {
	if d.File == nil {
		return syscall.EBADF
	}

	obj, err := e.cat.FindObject(ctx, d.OID, d.UUID, d.Version)
	if err != nil {
		return err
	}

	layout, err := e.findLayout(ctx, obj)
	if err != nil {
		return err
	}

	if d.Flags&xfer.FlagBestHost != 0 {
		host, _, err := e.locate(ctx, layout, "")
		if err != nil {
			return err
		}
		if host != "" {
			if p := d.Get(); p != nil {
				p.NodeName = host
			}
			return fmt.Errorf("%w: '%s' is better served by %s", syscall.EREMOTE, obj.OID, host)
		}
	}

	var lastErr error = syscall.ENOENT
	for i := range layout.Extents {
		ext := &layout.Extents[i]
		if ext.Medium.Family != resource.FamilyDir {
			lastErr = syscall.ENODEV
			continue
		}

		if lastErr = readExtent(d.File, ext); lastErr == nil {
			return fillMD(d, obj)
		}

		e.log.Warn("could not read replica",
			zap.String("oid", obj.OID), zap.Stringer("medium", ext.Medium), zap.Error(lastErr))
	}

	return lastErr
}

func readExtent(dst *os.File, ext *catalog.Extent) error {
	src, err := os.Open(extentPath(ext))
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := dst.Truncate(0); err != nil {
		return err
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		return err
	}
	if n != ext.Size {
		return fmt.Errorf("%w: replica on %s has %d bytes, expected %d", syscall.EIO, ext.Medium, n, ext.Size)
	}

	return nil
}
