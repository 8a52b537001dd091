package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type storedObject struct {
	uuid    string
	version int
	payload []byte
	md      map[string]string
	// node serves the object when set.
	node string
}

type fakeEngine struct {
	objects map[string]storedObject
	getMD   int
	get     int
}

func (e *fakeEngine) find(d *xfer.Descriptor) (storedObject, error) {
	obj, ok := e.objects[d.OID]
	if !ok || (d.UUID != "" && d.UUID != obj.uuid) || (d.Version > 0 && d.Version != obj.version) {
		return obj, syscall.ENOENT
	}

	md, err := attrs.FromMap(obj.md)
	if err != nil {
		return obj, err
	}
	d.Attrs = *md
	d.UUID, d.Version = obj.uuid, obj.version
	d.Get().Size = int64(len(obj.payload))

	return obj, nil
}

func (e *fakeEngine) Put(context.Context, []*xfer.Descriptor, xfer.CompletionFunc) error {
	return syscall.ENOTSUP
}

func (e *fakeEngine) GetMD(_ context.Context, batch []*xfer.Descriptor, done xfer.CompletionFunc) error {
	e.getMD++
	for _, d := range batch {
		_, err := e.find(d)
		done(d, err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEngine) Get(_ context.Context, batch []*xfer.Descriptor, done xfer.CompletionFunc) error {
	e.get++
	for _, d := range batch {
		obj, err := e.find(d)
		if err == nil && obj.node != "" && d.Flags&xfer.FlagBestHost != 0 {
			d.Get().NodeName = obj.node
			err = fmt.Errorf("%w: served by %s", syscall.EREMOTE, obj.node)
		}
		if err == nil {
			_, err = d.File.Write(obj.payload)
		}
		done(d, err)
		if err != nil {
			return err
		}
	}
	return nil
}

func newEngine() *fakeEngine {
	return &fakeEngine{objects: map[string]storedObject{
		"doc1": {
			uuid:    "u-1",
			version: 2,
			payload: []byte("<html><body>hello</body></html>"),
			md:      map[string]string{"FileName": "dir/index.html", "proj": "x", "Timestamp": "1700000000"},
		},
		"far": {
			uuid:    "u-2",
			version: 1,
			payload: []byte("remote"),
			node:    "node-2",
		},
	}}
}

func getRequest(oid, uri string) *fasthttp.RequestCtx {
	c := new(fasthttp.RequestCtx)
	c.Init(new(fasthttp.Request), nil, nil)
	c.Request.SetRequestURI(uri)
	c.SetUserValue("oid", oid)
	return c
}

func stagedLeft(t *testing.T, dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestDownload(t *testing.T) {
	tmp := t.TempDir()
	engine := newEngine()
	d := New(zaptest.NewLogger(t), engine, nil, tmp)

	c := getRequest("doc1", "/get/doc1?download=true")
	d.DownloadByOID(c)

	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
	require.Equal(t, "<html><body>hello</body></html>", string(c.Response.Body()))
	require.Equal(t, "u-1", string(c.Response.Header.Peek("X-Object-Uuid")))
	require.Equal(t, "2", string(c.Response.Header.Peek("X-Object-Version")))
	require.Equal(t, "x", string(c.Response.Header.Peek("X-Attribute-proj")))
	require.Equal(t, "attachment; filename=index.html", string(c.Response.Header.Peek(fasthttp.HeaderContentDisposition)))
	require.Contains(t, string(c.Response.Header.ContentType()), "text/html")
	require.NotEmpty(t, c.Response.Header.Peek(fasthttp.HeaderLastModified))
	require.Equal(t, 1, engine.getMD)
	require.Equal(t, 1, engine.get)

	require.Empty(t, stagedLeft(t, tmp), "staging directory must be removed after the body is sent")
}

func TestDownloadMissing(t *testing.T) {
	tmp := t.TempDir()
	engine := newEngine()
	d := New(zaptest.NewLogger(t), engine, nil, tmp)

	c := getRequest("nope", "/get/nope")
	d.DownloadByOID(c)

	require.Equal(t, fasthttp.StatusNotFound, c.Response.StatusCode())
	require.Zero(t, engine.get, "GET is not dispatched after a failed GETMD")
	require.Empty(t, stagedLeft(t, tmp))
}

func TestDownloadVersion(t *testing.T) {
	d := New(zaptest.NewLogger(t), newEngine(), nil, t.TempDir())

	c := getRequest("doc1", "/get/doc1?version=1")
	d.DownloadByOID(c)
	require.Equal(t, fasthttp.StatusNotFound, c.Response.StatusCode())

	c = getRequest("doc1", "/get/doc1?version=latest")
	d.DownloadByOID(c)
	require.Equal(t, fasthttp.StatusBadRequest, c.Response.StatusCode())

	c = getRequest("doc1", "/get/doc1?uuid=u-1&version=2")
	d.DownloadByOID(c)
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
}

func TestDownloadBestHost(t *testing.T) {
	tmp := t.TempDir()
	d := New(zaptest.NewLogger(t), newEngine(), nil, tmp)

	c := getRequest("far", "/get/far?best_host=true")
	d.DownloadByOID(c)

	require.Equal(t, fasthttp.StatusMisdirectedRequest, c.Response.StatusCode())
	require.Equal(t, "node-2", string(c.Response.Header.Peek(HeaderBestHost)))
	require.Empty(t, stagedLeft(t, tmp))

	c = getRequest("far", "/get/far")
	d.DownloadByOID(c)
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
	require.Equal(t, "remote", string(c.Response.Body()))
}

func TestHead(t *testing.T) {
	engine := newEngine()
	d := New(zaptest.NewLogger(t), engine, nil, t.TempDir())

	c := getRequest("doc1", "/get/doc1")
	c.Request.Header.SetMethod(fasthttp.MethodHead)
	d.HeadByOID(c)

	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
	require.Equal(t, "x", string(c.Response.Header.Peek("X-Attribute-proj")))
	require.Equal(t, "inline; filename=index.html", string(c.Response.Header.Peek(fasthttp.HeaderContentDisposition)))
	require.Equal(t, 1, engine.getMD)
	require.Zero(t, engine.get)

	c = getRequest("nope", "/get/nope")
	d.HeadByOID(c)
	require.Equal(t, fasthttp.StatusNotFound, c.Response.StatusCode())
}

func TestStagedFileClose(t *testing.T) {
	dir := t.TempDir()
	f, err := os.CreateTemp(dir, "object")
	require.NoError(t, err)

	sf := &stagedFile{File: f, dir: dir, log: zaptest.NewLogger(t)}
	_, err = io.WriteString(sf, "data")
	require.NoError(t, err)
	require.NoError(t, sf.Close())

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestMetadataInvalidAttributes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	d := &xfer.Descriptor{OID: "doc1", Op: xfer.OpGetMD}
	require.NoError(t, d.Attrs.Set("FileName", "\xff\xfe"))

	obj := object{attrs: map[string]string{"stale": "x"}}
	metadata(zap.New(core), &obj)(d, nil)

	require.Nil(t, obj.attrs)
	require.Equal(t, 1, logs.FilterMessage("skip object attributes").Len())
}
