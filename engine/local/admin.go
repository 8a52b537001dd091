package local

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/resource"
)

func admStatus(keepLocked bool) catalog.AdmStatus {
	if keepLocked {
		return catalog.AdmLocked
	}

	return catalog.AdmUnlocked
}

// DeviceAdd implements admin.Handle. Dir devices must be existing
// directories.
func (e *Engine) DeviceAdd(ctx context.Context, family resource.Family, names []string, keepLocked bool) error {
	devices := make([]catalog.Device, 0, len(names))
	for _, name := range names {
		if family == resource.FamilyDir {
			if err := checkDir(name); err != nil {
				return err
			}
		}

		devices = append(devices, catalog.Device{
			ID:        resource.ID{Family: family, Name: name},
			Host:      e.cfg.Hostname,
			Path:      name,
			AdmStatus: admStatus(keepLocked),
		})
	}

	return e.cat.InsertDevices(ctx, devices)
}

func checkDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%w: '%s'", syscall.ENOTDIR, path)
	}

	return nil
}

// setDeviceStatus changes the administrative status of devices while
// holding their catalog lock.
func (e *Engine) setDeviceStatus(ctx context.Context, family resource.Family, names []string,
	status catalog.AdmStatus, forced bool) error {
	ids := resource.IDs(family, names)
	if err := e.cat.Lock(ctx, catalog.KindDevice, ids, e.owner, forced); err != nil {
		return err
	}
	defer func() {
		_ = e.cat.Unlock(context.WithoutCancel(ctx), catalog.KindDevice, ids, e.owner, false)
	}()

	all, err := e.cat.ListDevices(ctx, family)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	devices := make([]catalog.Device, 0, len(names))
	for _, d := range all {
		if _, ok := wanted[d.ID.Name]; ok {
			d.AdmStatus = status
			devices = append(devices, d)
		}
	}

	return e.cat.UpdateDevices(ctx, devices)
}

// DeviceLock implements admin.Handle.
func (e *Engine) DeviceLock(ctx context.Context, family resource.Family, names []string, forced bool) error {
	return e.setDeviceStatus(ctx, family, names, catalog.AdmLocked, forced)
}

// DeviceUnlock implements admin.Handle.
func (e *Engine) DeviceUnlock(ctx context.Context, family resource.Family, names []string, forced bool) error {
	return e.setDeviceStatus(ctx, family, names, catalog.AdmUnlocked, forced)
}

var familyFS = map[resource.Family]resource.FSType{
	resource.FamilyTape:      resource.FSLTFS,
	resource.FamilyDir:       resource.FSPosix,
	resource.FamilyRadosPool: resource.FSRados,
}

// MediumAdd implements admin.Handle. New media are blank until formatted.
func (e *Engine) MediumAdd(ctx context.Context, family resource.Family, names, tags []string, keepLocked bool) error {
	media := make([]catalog.Medium, 0, len(names))
	for _, name := range names {
		media = append(media, catalog.Medium{
			ID:        resource.ID{Family: family, Name: name},
			FSType:    familyFS[family],
			FSStatus:  catalog.FSBlank,
			AdmStatus: admStatus(keepLocked),
			Tags:      tags,
		})
	}

	return e.cat.InsertMedia(ctx, media)
}

// Format implements admin.Handle.
func (e *Engine) Format(ctx context.Context, id resource.ID, fs resource.FSType, unlock bool) error {
	if id.Family != resource.FamilyDir || fs != resource.FSPosix {
		return fmt.Errorf("%w: cannot format %s as %s", syscall.ENODEV, id, fs)
	}

	ids := []resource.ID{id}
	if err := e.cat.Lock(ctx, catalog.KindMedium, ids, e.owner, false); err != nil {
		return err
	}
	defer func() {
		_ = e.cat.Unlock(context.WithoutCancel(ctx), catalog.KindMedium, ids, e.owner, false)
	}()

	m, err := e.cat.GetMedium(ctx, id)
	if err != nil {
		return err
	}
	if m.FSStatus != catalog.FSBlank {
		return fmt.Errorf("%w: medium %s is already formatted", syscall.EEXIST, id)
	}

	if err := os.MkdirAll(id.Name, 0o750); err != nil {
		return err
	}

	m.FSType = fs
	m.FSStatus = catalog.FSEmpty
	if unlock {
		m.AdmStatus = catalog.AdmUnlocked
	}

	return e.cat.UpdateMedium(ctx, m)
}
