package objects

import (
	"context"
	"syscall"
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	listed  []catalog.ObjectQuery
	records []catalog.Object
	freed   int

	batches [][]*xfer.Descriptor
	rename  [3]string
	status  error

	host  string
	locks int
}

func (e *fakeEngine) ListObjects(_ context.Context, q catalog.ObjectQuery) ([]catalog.Object, error) {
	e.listed = append(e.listed, q)
	return e.records, e.status
}

func (e *fakeEngine) FreeObjects([]catalog.Object) { e.freed++ }

func (e *fakeEngine) Delete(_ context.Context, batch []*xfer.Descriptor) error {
	e.batches = append(e.batches, batch)
	return e.status
}

func (e *fakeEngine) Undelete(_ context.Context, batch []*xfer.Descriptor) error {
	e.batches = append(e.batches, batch)
	return e.status
}

func (e *fakeEngine) Rename(_ context.Context, oldOID, uuid, newOID string) error {
	e.rename = [3]string{oldOID, uuid, newOID}
	return e.status
}

func (e *fakeEngine) Locate(context.Context, string, string, int, string) (string, int, error) {
	return e.host, e.locks, e.status
}

func TestList(t *testing.T) {
	e := &fakeEngine{records: []catalog.Object{{OID: "a"}, {OID: "b"}}}
	c := New(e, nil)

	_, err := c.List(context.Background(), ListParams{SortField: "bogus"})
	require.ErrorIs(t, err, hsmerr.ErrInvalidArgument)
	require.Empty(t, e.listed, "engine must not be contacted")

	_, err = c.List(context.Background(), ListParams{SortField: "deprec_time"})
	require.ErrorIs(t, err, hsmerr.ErrInvalidArgument)

	list, err := c.List(context.Background(), ListParams{
		Resources:  []string{"a.*"},
		Pattern:    true,
		Deprecated: true,
		SortField:  "deprec_time",
		Reverse:    true,
	})
	require.NoError(t, err)
	require.Len(t, list.Records(), 2)
	require.Equal(t, catalog.KindDeprecated, e.listed[0].Sort.Kind)
	require.True(t, e.listed[0].Pattern)

	list.Release()
	list.Release()
	require.Equal(t, 1, e.freed)
	require.Nil(t, list.Records())

	e.status = syscall.EIO
	_, err = c.List(context.Background(), ListParams{})
	require.ErrorIs(t, err, hsmerr.ErrEngineFailure)
	require.Equal(t, 1, e.freed, "failed lists are not freed")
}

func TestDelete(t *testing.T) {
	e := &fakeEngine{}
	c := New(e, nil)

	require.ErrorIs(t, c.Delete(context.Background(), nil, false), hsmerr.ErrInvalidArgument)

	require.NoError(t, c.Delete(context.Background(), []string{"a", "b"}, true))
	require.Len(t, e.batches[0], 2)
	for _, d := range e.batches[0] {
		require.Equal(t, xfer.OpDelete, d.Op)
		require.NotZero(t, d.Flags&xfer.FlagHardDelete)
	}

	e.status = syscall.ENOENT
	err := c.Delete(context.Background(), []string{"a"}, false)
	require.ErrorIs(t, err, hsmerr.ErrNotFound)
	require.Contains(t, err.Error(), "'a'")
}

func TestUndelete(t *testing.T) {
	e := &fakeEngine{}
	c := New(e, nil)

	require.ErrorIs(t, c.Undelete(context.Background(), nil, nil), hsmerr.ErrInvalidArgument)
	require.ErrorIs(t, c.Undelete(context.Background(), []string{"a"}, []string{"u"}), hsmerr.ErrInvalidArgument)

	require.NoError(t, c.Undelete(context.Background(), nil, []string{"u1"}))
	require.Equal(t, "u1", e.batches[0][0].UUID)
	require.Empty(t, e.batches[0][0].OID)

	e.status = syscall.ENOENT
	err := c.Undelete(context.Background(), nil, []string{"u1"})
	require.ErrorContains(t, err, "uuids 'u1'")

	err = c.Undelete(context.Background(), []string{"a"}, nil)
	require.ErrorContains(t, err, "oids 'a'")
}

func TestRename(t *testing.T) {
	e := &fakeEngine{}
	c := New(e, nil)

	require.ErrorIs(t, c.Rename(context.Background(), "", "", "new"), hsmerr.ErrInvalidArgument)
	require.ErrorIs(t, c.Rename(context.Background(), "old", "u", "new"), hsmerr.ErrInvalidArgument)
	require.ErrorIs(t, c.Rename(context.Background(), "old", "", ""), hsmerr.ErrInvalidArgument)

	require.NoError(t, c.Rename(context.Background(), "", "u1", "new"))
	require.Equal(t, [3]string{"", "u1", "new"}, e.rename)

	require.NoError(t, c.Rename(context.Background(), "old", "", "new"))
	require.Equal(t, [3]string{"old", "", "new"}, e.rename)
}

func TestLocate(t *testing.T) {
	e := &fakeEngine{}
	c := New(e, nil)

	_, err := c.Locate(context.Background(), "", "", 0, "")
	require.ErrorIs(t, err, hsmerr.ErrInvalidArgument)

	loc, err := c.Locate(context.Background(), "a", "", 0, "")
	require.NoError(t, err)
	require.Equal(t, Location{}, loc)

	e.host, e.locks = "node-2", 2
	loc, err = c.Locate(context.Background(), "a", "", 0, "node-2")
	require.NoError(t, err)
	require.Equal(t, Location{Hostname: "node-2", NewLocks: 2}, loc)

	e.status = syscall.EBUSY
	_, err = c.Locate(context.Background(), "a", "", 0, "")
	require.ErrorIs(t, err, hsmerr.ErrResourceBusy)
}
