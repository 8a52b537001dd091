package admin

import (
	"context"
	"syscall"
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/stretchr/testify/require"
)

type call struct {
	name   string
	family resource.Family
	names  []string
	flag   bool
}

type fakeHandle struct {
	calls   []call
	status  error
	layouts []catalog.Layout
	freed   int
	formats []resource.ID
	fs      []resource.FSType
	closed  bool
}

func (h *fakeHandle) record(name string, family resource.Family, names []string, flag bool) error {
	h.calls = append(h.calls, call{name, family, names, flag})
	return h.status
}

func (h *fakeHandle) DeviceAdd(_ context.Context, f resource.Family, names []string, keep bool) error {
	return h.record("add", f, names, keep)
}

func (h *fakeHandle) DeviceLock(_ context.Context, f resource.Family, names []string, forced bool) error {
	return h.record("lock", f, names, forced)
}

func (h *fakeHandle) DeviceUnlock(_ context.Context, f resource.Family, names []string, forced bool) error {
	return h.record("unlock", f, names, forced)
}

func (h *fakeHandle) MediumAdd(_ context.Context, f resource.Family, names, _ []string, keep bool) error {
	return h.record("medium add", f, names, keep)
}

func (h *fakeHandle) Format(_ context.Context, id resource.ID, fs resource.FSType, _ bool) error {
	h.formats = append(h.formats, id)
	h.fs = append(h.fs, fs)
	return h.status
}

func (h *fakeHandle) ListLayouts(context.Context, catalog.LayoutQuery) ([]catalog.Layout, error) {
	return h.layouts, h.status
}

func (h *fakeHandle) FreeLayouts([]catalog.Layout) { h.freed++ }

func (h *fakeHandle) Fini() error {
	h.closed = true
	return nil
}

type fakeInit struct {
	h      *fakeHandle
	online bool
}

func (i fakeInit) Init(_ context.Context, requireTransfer bool) (Handle, error) {
	if requireTransfer && !i.online {
		return nil, syscall.ENXIO
	}
	return i.h, nil
}

func TestOpen(t *testing.T) {
	h := new(fakeHandle)

	_, err := Open(context.Background(), fakeInit{h: h}, true, nil)
	require.ErrorIs(t, err, hsmerr.ErrEngineFailure)
	require.ErrorIs(t, err, syscall.ENXIO)

	c, err := Open(context.Background(), fakeInit{h: h}, false, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.True(t, h.closed)
}

func TestDeviceCommands(t *testing.T) {
	h := new(fakeHandle)
	c := New(h, nil)
	ctx := context.Background()

	require.ErrorIs(t, c.Add(ctx, resource.FamilyUnspecified, []string{"/d"}, false), hsmerr.ErrInvalidArgument)
	require.ErrorIs(t, c.Lock(ctx, resource.FamilyDir, nil, false), hsmerr.ErrInvalidArgument)
	require.ErrorIs(t, c.Unlock(ctx, resource.FamilyDir, []string{""}, false), hsmerr.ErrInvalidArgument)
	require.Empty(t, h.calls)

	require.NoError(t, c.Add(ctx, resource.FamilyDir, []string{"/d1", "/d2"}, true))
	require.NoError(t, c.Lock(ctx, resource.FamilyDir, []string{"/d1"}, false))
	require.NoError(t, c.Unlock(ctx, resource.FamilyDir, []string{"/d1"}, true))
	require.NoError(t, c.MediumAdd(ctx, resource.FamilyTape, []string{"T1"}, []string{"fast"}, false))
	require.Equal(t, []call{
		{"add", resource.FamilyDir, []string{"/d1", "/d2"}, true},
		{"lock", resource.FamilyDir, []string{"/d1"}, false},
		{"unlock", resource.FamilyDir, []string{"/d1"}, true},
		{"medium add", resource.FamilyTape, []string{"T1"}, false},
	}, h.calls)

	h.status = syscall.EEXIST
	err := c.Add(ctx, resource.FamilyDir, []string{"/d1"}, false)
	require.ErrorIs(t, err, hsmerr.ErrEngineFailure)
	require.Contains(t, err.Error(), "device add error")

	h.status = syscall.EBUSY
	err = c.Lock(ctx, resource.FamilyDir, []string{"/d1", "/d2"}, false)
	require.ErrorIs(t, err, hsmerr.ErrResourceBusy)
	require.Contains(t, err.Error(), "/d1, /d2")
}

func TestFormat(t *testing.T) {
	h := new(fakeHandle)
	c := New(h, nil)
	ctx := context.Background()

	for _, fs := range []string{"LTFS", "ltfs", "LtFs"} {
		require.NoError(t, c.Format(ctx, "T1", fs, true))
	}
	for i := range h.formats {
		require.Equal(t, resource.ID{Family: resource.FamilyTape, Name: "T1"}, h.formats[i])
		require.Equal(t, resource.FSLTFS, h.fs[i])
	}

	require.NoError(t, c.Format(ctx, "/m1", "posix", false))
	require.Equal(t, resource.FamilyDir, h.formats[3].Family)
	require.Equal(t, resource.FSPosix, h.fs[3])

	err := c.Format(ctx, "T1", "zzz", false)
	require.ErrorIs(t, err, hsmerr.ErrUnsupportedOperation)
	require.Len(t, h.formats, 4, "engine must not be contacted")

	h.status = syscall.EBUSY
	require.ErrorIs(t, c.Format(ctx, "T1", "ltfs", false), hsmerr.ErrResourceBusy)
}

func layoutsFixture() []catalog.Layout {
	m1 := resource.ID{Family: resource.FamilyDir, Name: "/m1"}
	m2 := resource.ID{Family: resource.FamilyDir, Name: "/m2"}

	return []catalog.Layout{
		{OID: "a", Version: 1, ExtentCount: 3, Extents: []catalog.Extent{
			{Index: 0, Size: 1, Medium: m1},
			{Index: 1, Size: 2, Medium: m2},
			{Index: 2, Size: 3, Medium: m1},
		}},
		{OID: "b", Version: 1, ExtentCount: 1, Extents: []catalog.Extent{{Size: 9, Medium: m2}}},
	}
}

func TestDegroup(t *testing.T) {
	layouts := layoutsFixture()

	all := Degroup(layouts, "")
	require.Len(t, all, 4)
	for i, l := range all {
		require.Equal(t, 1, l.ExtentCount)
		require.Len(t, l.Extents, 1)
		if i < 3 {
			require.Equal(t, "a", l.OID)
			require.Equal(t, layouts[0].Extents[i], l.Extents[0])
		}
	}

	onM1 := Degroup(layouts, "/m1")
	require.Len(t, onM1, 2)
	require.Equal(t, []int{0, 2}, []int{onM1[0].Extents[0].Index, onM1[1].Extents[0].Index})

	require.Empty(t, Degroup(layouts, "/m3"))

	tapes := []catalog.Layout{{OID: "c", Version: 1, ExtentCount: 2, Extents: []catalog.Extent{
		{Index: 0, Medium: resource.ID{Family: resource.FamilyTape, Name: "P00001L5"}},
		{Index: 1, Medium: resource.ID{Family: resource.FamilyTape, Name: "Q00002L5"}},
	}}}
	partial := Degroup(tapes, "P0000")
	require.Len(t, partial, 1)
	require.Equal(t, "P00001L5", partial[0].Extents[0].Medium.Name)
	require.Len(t, Degroup(tapes, "L5"), 2)
	require.Equal(t, 3, layouts[0].ExtentCount, "source records are untouched")
}

func TestLayoutList(t *testing.T) {
	h := &fakeHandle{layouts: layoutsFixture()}
	c := New(h, nil)

	list, err := c.LayoutList(context.Background(), LayoutParams{})
	require.NoError(t, err)
	require.Len(t, list.Records(), 2)
	list.Release()
	require.Nil(t, list.Records())

	list, err = c.LayoutList(context.Background(), LayoutParams{Medium: "/m2", Degroup: true})
	require.NoError(t, err)
	require.Len(t, list.Records(), 2)
	list.Release()
	list.Release()
	require.Equal(t, 2, h.freed)

	h.status = syscall.EIO
	_, err = c.LayoutList(context.Background(), LayoutParams{})
	require.ErrorIs(t, err, hsmerr.ErrEngineFailure)
}
