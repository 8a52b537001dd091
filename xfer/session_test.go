package xfer

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEngine struct {
	calls  []Op
	seen   map[Op][]*Descriptor
	fds    []int
	status error
	// itemStatus fails a single object id.
	itemStatus map[string]error
	node       string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{seen: make(map[Op][]*Descriptor)}
}

func (e *fakeEngine) run(op Op, batch []*Descriptor, done CompletionFunc) error {
	e.calls = append(e.calls, op)
	e.seen[op] = append(e.seen[op], batch...)
	for _, d := range batch {
		e.fds = append(e.fds, d.FD())
		if p := d.Get(); p != nil && e.node != "" {
			p.NodeName = e.node
		}
		done(d, e.itemStatus[d.OID])
	}

	return e.status
}

func (e *fakeEngine) Put(_ context.Context, batch []*Descriptor, done CompletionFunc) error {
	return e.run(OpPut, batch, done)
}

func (e *fakeEngine) Get(_ context.Context, batch []*Descriptor, done CompletionFunc) error {
	for _, d := range batch {
		if _, err := d.File.WriteString("partial"); err != nil {
			return err
		}
	}
	return e.run(OpGet, batch, done)
}

func (e *fakeEngine) GetMD(_ context.Context, batch []*Descriptor, done CompletionFunc) error {
	return e.run(OpGetMD, batch, done)
}

func writeFile(t *testing.T, name string, size int) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestPutEndToEnd(t *testing.T) {
	engine := newFakeEngine()
	s := NewSession(engine, zaptest.NewLogger(t))

	md, err := attrs.FromMap(map[string]string{"proj": "x"})
	require.NoError(t, err)

	d, err := s.RegisterPut("doc1", writeFile(t, "doc1", 1024), PutParams{}, WithAttrs(md))
	require.NoError(t, err)
	require.Equal(t, -1, d.FD(), "file is not opened at registration")

	var completed []string
	err = s.Run(context.Background(), func(d *Descriptor, err error) {
		require.NoError(t, err)
		require.EqualValues(t, 1024, d.Put().Size)
		v, ok := d.Attrs.Get("proj")
		require.True(t, ok)
		require.Equal(t, "x", v)
		completed = append(completed, d.OID)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"doc1"}, completed)

	require.Len(t, engine.fds, 1)
	require.GreaterOrEqual(t, engine.fds[0], 0)
	require.Nil(t, d.File)
	require.Equal(t, -1, d.FD())
	require.Zero(t, d.Attrs.Len())
	require.Zero(t, s.Pending(OpPut))
}

func TestRunOrder(t *testing.T) {
	engine := newFakeEngine()
	s := NewSession(engine, nil)
	dir := t.TempDir()

	_, err := s.RegisterPut("p", writeFile(t, "p", 1), PutParams{})
	require.NoError(t, err)
	_, err = s.RegisterGet("g", filepath.Join(dir, "g"))
	require.NoError(t, err)
	md, err := s.RegisterGetMD("m")
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background(), nil))
	require.Equal(t, []Op{OpGetMD, OpGet, OpPut}, engine.calls)
	require.Equal(t, []*Descriptor{md}, engine.seen[OpGetMD])
	require.Equal(t, -1, engine.fds[0], "GETMD has no file")
}

func TestRegisterValidation(t *testing.T) {
	s := NewSession(newFakeEngine(), nil)

	for _, tc := range []struct {
		name string
		op   Op
		oid  string
		path string
		opts []Option
	}{
		{name: "put without oid", op: OpPut, path: "/tmp/x"},
		{name: "put without path", op: OpPut, oid: "a"},
		{name: "put unknown family", op: OpPut, oid: "a", path: "/tmp/x",
			opts: []Option{WithPutParams(PutParams{Family: resource.Family(42)})}},
		{name: "get without path", op: OpGet, oid: "a"},
		{name: "getmd without id", op: OpGetMD},
		{name: "delete is not batched", op: OpDelete, oid: "a"},
		{name: "put params on get", op: OpGet, oid: "a", path: "/tmp/x",
			opts: []Option{WithPutParams(PutParams{})}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Register(tc.op, tc.oid, tc.path, tc.opts...)
			require.ErrorIs(t, err, hsmerr.ErrInvalidArgument)
		})
	}

	_, err := s.RegisterGetMD("", WithUUID("u1"), WithVersion(3))
	require.NoError(t, err)
}

func TestOpenFailureIsolated(t *testing.T) {
	engine := newFakeEngine()
	s := NewSession(engine, zaptest.NewLogger(t))

	_, err := s.RegisterPut("missing", filepath.Join(t.TempDir(), "nope"), PutParams{})
	require.NoError(t, err)
	_, err = s.RegisterPut("ok", writeFile(t, "ok", 10), PutParams{})
	require.NoError(t, err)

	results := make(map[string]error)
	_, err = s.Execute(context.Background(), OpPut, func(d *Descriptor, err error) {
		results[d.OID] = err
	})

	require.ErrorIs(t, err, hsmerr.ErrIOFailure)
	require.ErrorIs(t, err, syscall.ENOENT)
	require.Len(t, results, 2)
	require.Error(t, results["missing"])
	require.NoError(t, results["ok"])
	require.Len(t, engine.seen[OpPut], 1)
	require.Equal(t, "ok", engine.seen[OpPut][0].OID)

	var ioErr *hsmerr.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, []string{"missing", "ok"}, ioErr.ObjIDs)
}

func TestGetRollback(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0o644))

	engine := newFakeEngine()
	engine.status = syscall.ENOENT
	engine.itemStatus = map[string]error{"b": syscall.ENOENT}
	s := NewSession(engine, zaptest.NewLogger(t))

	_, err := s.RegisterGet("a", filepath.Join(dir, "a"))
	require.NoError(t, err)
	_, err = s.RegisterGet("b", filepath.Join(dir, "b"))
	require.NoError(t, err)
	_, err = s.RegisterGet("c", existing)
	require.NoError(t, err)

	err = s.Run(context.Background(), nil)
	require.ErrorIs(t, err, hsmerr.ErrIOFailure)
	require.Contains(t, err.Error(), filepath.Join(dir, "a"))

	require.NoFileExists(t, filepath.Join(dir, "a"))
	require.NoFileExists(t, filepath.Join(dir, "b"))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data), "files this batch did not create are kept")
	require.Zero(t, s.Pending(OpGet))
}

func TestGetReplace(t *testing.T) {
	dest := writeFile(t, "dest", 100)

	s := NewSession(newFakeEngine(), nil)
	_, err := s.RegisterGet("a", dest, WithFlags(FlagReplace))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "partial", string(data))

	engine := newFakeEngine()
	engine.status = syscall.EIO
	s = NewSession(engine, nil)
	_, err = s.RegisterGet("a", dest, WithFlags(FlagReplace))
	require.NoError(t, err)
	require.ErrorIs(t, s.Run(context.Background(), nil), syscall.EIO)
	require.NoFileExists(t, dest, "a truncated destination is removed on failure")
}

func TestBestHost(t *testing.T) {
	engine := newFakeEngine()
	engine.node = "node-2"
	engine.status = syscall.EREMOTE

	s := NewSession(engine, zaptest.NewLogger(t))
	_, err := s.RegisterGet("a", filepath.Join(t.TempDir(), "a"), WithFlags(FlagBestHost))
	require.NoError(t, err)

	res, err := s.Execute(context.Background(), OpGet, nil)
	require.Equal(t, "node-2", res.NodeName)

	var ioErr *hsmerr.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, "node-2", ioErr.NodeName)
	require.Equal(t, syscall.EREMOTE, ioErr.Code)
}

func TestRunStopsAndClears(t *testing.T) {
	engine := newFakeEngine()
	engine.status = syscall.EIO
	s := NewSession(engine, nil)

	_, err := s.RegisterGetMD("m")
	require.NoError(t, err)
	_, err = s.RegisterPut("p", writeFile(t, "p", 1), PutParams{})
	require.NoError(t, err)

	require.Error(t, s.Run(context.Background(), nil))
	require.Equal(t, []Op{OpGetMD}, engine.calls)
	require.Zero(t, s.Pending(OpPut))
}

func TestOpString(t *testing.T) {
	require.Equal(t, "GETMD", OpGetMD.String())
	require.Equal(t, "UNDELETE", OpUndelete.String())
	require.Equal(t, "op(9)", Op(9).String())
}
