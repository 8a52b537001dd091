package downloader

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

const (
	attributeFileName    = "FileName"
	attributeTimestamp   = "Timestamp"
	attributeContentType = "Content-Type"

	// HeaderBestHost names the host to retry a misdirected GET on.
	HeaderBestHost = "X-Best-Host"

	sizeToDetectType = 512
)

// Metrics accounts for transfers.
type Metrics interface {
	ObserveTransfer(op string, err error, elapsed time.Duration, size int64)
}

type Downloader struct {
	log     *zap.Logger
	engine  xfer.Engine
	metrics Metrics
	tempDir string
}

// New creates a downloader staging objects in tempDir (the system default
// when empty). metrics may be nil.
func New(log *zap.Logger, engine xfer.Engine, metrics Metrics, tempDir string) *Downloader {
	return &Downloader{log: log, engine: engine, metrics: metrics, tempDir: tempDir}
}

// object is what GETMD reports about the addressed generation.
type object struct {
	oid     string
	uuid    string
	version int
	size    int64
	attrs   map[string]string
}

type request struct {
	*fasthttp.RequestCtx
	log *zap.Logger
	oid string
	// opts address the generation from the query string.
	opts []xfer.Option
}

func (d *Downloader) newRequest(c *fasthttp.RequestCtx) (*request, error) {
	oid, _ := c.UserValue("oid").(string)

	r := &request{
		RequestCtx: c,
		log:        d.log.With(zap.String("oid", oid)),
		oid:        oid,
	}

	args := c.QueryArgs()
	if uuid := string(args.Peek("uuid")); uuid != "" {
		r.opts = append(r.opts, xfer.WithUUID(uuid))
	}
	if v := string(args.Peek("version")); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: version '%s'", hsmerr.ErrInvalidArgument, v)
		}
		r.opts = append(r.opts, xfer.WithVersion(version))
	}

	return r, nil
}

// metadata captures GETMD results before the session releases the
// descriptor. Attributes that are not valid text are dropped.
func metadata(log *zap.Logger, obj *object) xfer.CompletionFunc {
	return func(d *xfer.Descriptor, err error) {
		if err != nil || d.Op != xfer.OpGetMD {
			return
		}

		if obj.attrs, err = d.Attrs.Mapping(); err != nil {
			log.Debug("skip object attributes", zap.String("oid", d.OID), zap.Error(err))
		}
	}
}

func (d *Downloader) observe(op xfer.Op, err error, start time.Time, size int64) {
	if d.metrics != nil {
		d.metrics.ObserveTransfer(op.String(), err, time.Since(start), size)
	}
}

// DownloadByOID retrieves the object into a staging file and streams it back.
func (d *Downloader) DownloadByOID(c *fasthttp.RequestCtx) {
	r, err := d.newRequest(c)
	if err != nil {
		response.ErrorFor(c, "wrong object address", err)
		return
	}

	dir, err := os.MkdirTemp(d.tempDir, "hsm-get-*")
	if err != nil {
		r.log.Error("could not create staging directory", zap.Error(err))
		response.Error(c, "could not create staging directory", fasthttp.StatusInternalServerError)
		return
	}
	staged := false
	defer func() {
		if !staged {
			_ = os.RemoveAll(dir)
		}
	}()

	var flags xfer.Flags
	if c.QueryArgs().GetBool("best_host") {
		flags |= xfer.FlagBestHost
	}

	var (
		obj     object
		start   = time.Now()
		dst     = filepath.Join(dir, "object")
		session = xfer.NewSession(d.engine, r.log)
	)
	md, err := session.RegisterGetMD(r.oid, r.opts...)
	if err == nil {
		_, err = session.RegisterGet(r.oid, dst, append(r.opts, xfer.WithFlags(flags))...)
	}
	if err != nil {
		response.ErrorFor(c, "wrong object address", err)
		return
	}

	err = session.Run(c, metadata(r.log, &obj))
	obj.oid, obj.uuid, obj.version, obj.size = md.OID, md.UUID, md.Version, md.Get().Size
	d.observe(xfer.OpGet, err, start, obj.size)
	if err != nil {
		r.handleErr(err, start)
		return
	}

	f, err := os.Open(dst)
	if err != nil {
		r.log.Error("could not open retrieved object", zap.Error(err))
		response.Error(c, "could not open retrieved object", fasthttp.StatusInternalServerError)
		return
	}

	head := make([]byte, sizeToDetectType)
	n, _ := f.ReadAt(head, 0)

	r.setHeaders(&obj, http.DetectContentType(head[:n]))
	c.Response.SetBodyStream(&stagedFile{File: f, dir: dir, log: r.log}, int(obj.size))
	staged = true
}

func (r *request) handleErr(err error, start time.Time) {
	r.log.Error("could not receive object",
		zap.Stringer("elapsed", time.Since(start)),
		zap.Error(err))

	var ioErr *hsmerr.IOError
	if errors.As(err, &ioErr) && ioErr.NodeName != "" {
		r.Response.Header.Set(HeaderBestHost, ioErr.NodeName)
		response.Error(r.RequestCtx, "object is served by "+ioErr.NodeName, fasthttp.StatusMisdirectedRequest)
		return
	}

	response.ErrorFor(r.RequestCtx, "could not receive object", err)
}

// setHeaders describes obj, detected is used when no content type was
// stored with the object.
func (r *request) setHeaders(obj *object, detected string) {
	var (
		dis         = "inline"
		filename    = obj.oid
		contentType = detected
	)

	r.Response.Header.Set(fasthttp.HeaderContentLength, strconv.FormatInt(obj.size, 10))
	r.Response.Header.Set("X-Object-Id", obj.oid)
	r.Response.Header.Set("X-Object-Uuid", obj.uuid)
	r.Response.Header.Set("X-Object-Version", strconv.Itoa(obj.version))

	for key, val := range obj.attrs {
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(val) {
			r.log.Debug("skip attribute not fitting a header", zap.String("key", key))
			continue
		}
		r.Response.Header.Set("X-Attribute-"+key, val)

		switch key {
		case attributeFileName:
			filename = val
		case attributeContentType:
			contentType = val
		case attributeTimestamp:
			value, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				r.log.Info("couldn't parse creation date",
					zap.String("key", key),
					zap.String("val", val),
					zap.Error(err))
				continue
			}
			r.Response.Header.Set(fasthttp.HeaderLastModified, time.Unix(value, 0).UTC().Format(http.TimeFormat))
		}
	}

	if r.QueryArgs().GetBool("download") {
		dis = "attachment"
	}
	if contentType != "" {
		r.SetContentType(contentType)
	}
	r.Response.Header.Set(fasthttp.HeaderContentDisposition, dis+"; filename="+path.Base(filename))
}

// stagedFile removes its staging directory once the response is sent.
type stagedFile struct {
	*os.File
	dir string
	log *zap.Logger
}

func (f *stagedFile) Close() error {
	err := f.File.Close()
	if rmErr := os.RemoveAll(f.dir); rmErr != nil {
		f.log.Warn("could not remove staged object", zap.String("dir", f.dir), zap.Error(rmErr))
	}

	return err
}

var _ io.ReadCloser = (*stagedFile)(nil)
