package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"go.uber.org/zap"
)

// placement is a resolved PUT target.
type placement struct {
	family    resource.Family
	layout    string
	params    map[string]string
	replicas  int
	tags      []string
	library   string
	overwrite bool
}

func (e *Engine) resolvePut(d *xfer.Descriptor) (*placement, error) {
	p := d.Put()
	if p == nil {
		return nil, syscall.EINVAL
	}

	pl := &placement{
		family:    p.Family,
		layout:    p.Layout,
		tags:      append([]string(nil), p.Tags...),
		library:   p.Library,
		overwrite: p.Overwrite || d.Flags&xfer.FlagReplace != 0,
	}

	if p.Alias != "" {
		alias, ok := e.cfg.Aliases[p.Alias]
		if !ok {
			return nil, fmt.Errorf("%w: unknown alias '%s'", syscall.EINVAL, p.Alias)
		}
		if pl.family == resource.FamilyUnspecified && alias.Family != "" {
			pl.family, _ = resource.ParseFamily(alias.Family)
		}
		if pl.layout == "" {
			pl.layout = alias.Layout
		}
		pl.tags = append(pl.tags, alias.Tags...)
	}

	if pl.family == resource.FamilyUnspecified {
		pl.family = e.cfg.defaultFamily()
	}
	if pl.family != resource.FamilyDir {
		return nil, fmt.Errorf("%w: no data path for family %s", syscall.ENODEV, pl.family)
	}

	if pl.layout == "" {
		pl.layout = e.cfg.DefaultLayout
	}
	if pl.layout != LayoutRAID1 {
		return nil, fmt.Errorf("%w: unknown layout '%s'", syscall.EINVAL, pl.layout)
	}

	params, err := p.LayoutParams.Mapping()
	if err != nil {
		return nil, err
	}
	pl.params = params

	pl.replicas = 1
	if v, ok := params["repl_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: invalid repl_count '%s'", syscall.EINVAL, v)
		}
		pl.replicas = n
	}
	pl.params["repl_count"] = strconv.Itoa(pl.replicas)

	return pl, nil
}

// hasDevice reports whether an unlocked device of family is attached to
// this host.
func (e *Engine) hasDevice(ctx context.Context, family resource.Family) (bool, error) {
	devs, err := e.cat.ListDevices(ctx, family)
	if err != nil {
		return false, err
	}

	for _, d := range devs {
		if d.Host == e.cfg.Hostname && d.AdmStatus == catalog.AdmUnlocked {
			return true, nil
		}
	}

	return false, nil
}

// selectMedia picks and locks media for a write.
func (e *Engine) selectMedia(ctx context.Context, pl *placement) ([]catalog.Medium, error) {
	ok, err := e.hasDevice(ctx, pl.family)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no usable %s device", syscall.ENODEV, pl.family)
	}

	candidates, err := e.cat.ListMedia(ctx, catalog.MediumQuery{
		Family:    pl.family,
		Tags:      pl.tags,
		Library:   pl.library,
		AdmStatus: catalog.AdmUnlocked,
	})
	if err != nil {
		return nil, err
	}

	var (
		selected []catalog.Medium
		busy     bool
	)
	for _, m := range candidates {
		if m.FSStatus != catalog.FSEmpty && m.FSStatus != catalog.FSUsed {
			continue
		}
		if m.Lock.Held() {
			busy = true
			continue
		}

		err := e.cat.Lock(ctx, catalog.KindMedium, []resource.ID{m.ID}, e.owner, false)
		if errors.Is(err, hsmerr.ErrResourceBusy) {
			busy = true
			continue
		}
		if err != nil {
			e.unlockMedia(ctx, selected)
			return nil, err
		}

		selected = append(selected, m)
		if len(selected) == pl.replicas {
			return selected, nil
		}
	}

	e.unlockMedia(ctx, selected)
	if busy {
		return nil, fmt.Errorf("%w: not enough free %s media", syscall.EAGAIN, pl.family)
	}

	return nil, fmt.Errorf("%w: not enough %s media", syscall.ENOSPC, pl.family)
}

func (e *Engine) unlockMedia(ctx context.Context, media []catalog.Medium) {
	if len(media) == 0 {
		return
	}

	ids := make([]resource.ID, 0, len(media))
	for _, m := range media {
		ids = append(ids, m.ID)
	}

	if err := e.cat.Unlock(context.WithoutCancel(ctx), catalog.KindMedium, ids, e.owner, false); err != nil {
		e.log.Error("could not unlock media", zap.String("media", resource.Names(ids)), zap.Error(err))
	}
}

func extentPath(ext *catalog.Extent) string {
	return filepath.Join(ext.Medium.Name, ext.Address)
}

func writeExtent(src *os.File, size int64, ext *catalog.Extent) error {
	dst, err := os.OpenFile(extentPath(ext), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	n, err := io.Copy(dst, io.NewSectionReader(src, 0, size))
	if err == nil && n != size {
		err = io.ErrUnexpectedEOF
	}
	if err == nil {
		err = dst.Sync()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}

	return err
}

func removeExtents(extents []catalog.Extent) {
	for i := range extents {
		_ = os.Remove(extentPath(&extents[i]))
	}
}

// Put implements xfer.Engine.
func (e *Engine) Put(ctx context.Context, batch []*xfer.Descriptor, done xfer.CompletionFunc) error {
	if err := e.checkOnline(); err != nil {
		return err
	}

	return forEach(batch, done, func(d *xfer.Descriptor) error {
		err := e.put(ctx, d)
		if err != nil {
			e.log.Error("put failed", zap.String("oid", d.OID), zap.Error(err))
		}
		return err
	})
}

func (e *Engine) put(ctx context.Context, d *xfer.Descriptor) error {
	if d.File == nil {
		return syscall.EBADF
	}

	pl, err := e.resolvePut(d)
	if err != nil {
		return err
	}

	md, err := d.Attrs.Mapping()
	if err != nil {
		return err
	}

	obj := &catalog.Object{
		OID:          d.OID,
		UUID:         uuid.NewString(),
		Version:      1,
		UserMD:       md,
		Status:       catalog.StatusComplete,
		Size:         d.Put().Size,
		Grouping:     d.Put().Grouping,
		CreationTime: time.Now(),
	}
	obj.AccessTime = obj.CreationTime

	prev, err := e.cat.FindObject(ctx, d.OID, "", 0)
	switch {
	case err == nil && !prev.Deprecated():
		if !pl.overwrite {
			return fmt.Errorf("%w: object '%s' exists", syscall.EEXIST, d.OID)
		}
		obj.UUID, obj.Version = prev.UUID, prev.Version+1
	case err == nil:
		// A deprecated generation keeps the name, the new object gets a new uuid.
	case !errors.Is(err, hsmerr.ErrNotFound):
		return err
	}

	media, err := e.selectMedia(ctx, pl)
	if err != nil {
		return err
	}
	defer e.unlockMedia(ctx, media)

	layout := &catalog.Layout{
		OID:     obj.OID,
		UUID:    obj.UUID,
		Version: obj.Version,
		Name:    pl.layout,
		Params:  pl.params,
	}
	for i := range media {
		ext := catalog.Extent{
			UUID:    uuid.NewString(),
			Index:   i,
			Size:    obj.Size,
			Address: fmt.Sprintf("%s.%d.r%d", obj.UUID, obj.Version, i),
			Medium:  media[i].ID,
		}
		if err := writeExtent(d.File, obj.Size, &ext); err != nil {
			removeExtents(layout.Extents)
			_ = os.Remove(extentPath(&ext))
			return err
		}
		layout.Extents = append(layout.Extents, ext)
	}

	if err := e.cat.CommitObject(ctx, obj, layout, prev != nil && !prev.Deprecated()); err != nil {
		removeExtents(layout.Extents)
		return err
	}

	e.account(ctx, media, obj.Size)

	d.UUID, d.Version = obj.UUID, obj.Version
	e.log.Debug("object stored",
		zap.String("oid", obj.OID), zap.String("uuid", obj.UUID), zap.Int("version", obj.Version),
		zap.Int64("size", obj.Size), zap.String("media", mediaNames(media)))

	return nil
}

// account updates the statistics of the written media.
func (e *Engine) account(ctx context.Context, media []catalog.Medium, size int64) {
	for _, m := range media {
		cur, err := e.cat.GetMedium(ctx, m.ID)
		if err == nil {
			cur.Stats.NbObj++
			cur.Stats.LogcSpcUsed += size
			cur.FSStatus = catalog.FSUsed
			err = e.cat.UpdateMedium(ctx, cur)
		}
		if err != nil {
			e.log.Warn("could not update medium stats", zap.Stringer("medium", m.ID), zap.Error(err))
		}
	}
}

func mediaNames(media []catalog.Medium) string {
	ids := make([]resource.ID, 0, len(media))
	for _, m := range media {
		ids = append(ids, m.ID)
	}

	return resource.Names(ids)
}
