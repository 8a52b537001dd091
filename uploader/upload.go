package uploader

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	// AttributeFileName is set from the multipart file name unless given.
	AttributeFileName = "FileName"
	// AttributeTimestamp is the upload time in Unix seconds.
	AttributeTimestamp = "Timestamp"

	jsonHeader = "application/json; charset=UTF-8"
)

// Metrics accounts for transfers.
type Metrics interface {
	ObserveTransfer(op string, err error, elapsed time.Duration, size int64)
}

type Uploader struct {
	log                    *zap.Logger
	engine                 xfer.Engine
	metrics                Metrics
	tempDir                string
	enableDefaultTimestamp bool
}

// New creates an uploader staging request bodies in tempDir (the system
// default when empty). metrics may be nil.
func New(log *zap.Logger, engine xfer.Engine, metrics Metrics, tempDir string, enableDefaultTimestamp bool) *Uploader {
	return &Uploader{
		log:                    log,
		engine:                 engine,
		metrics:                metrics,
		tempDir:                tempDir,
		enableDefaultTimestamp: enableDefaultTimestamp,
	}
}

// Upload stores the first file of a multipart form under the oid path
// parameter.
func (u *Uploader) Upload(c *fasthttp.RequestCtx) {
	var (
		err    error
		file   MultipartFile
		oid, _ = c.UserValue("oid").(string)
		log    = u.log.With(zap.String("oid", oid))
	)

	params, flags, err := putParams(c.QueryArgs())
	if err != nil {
		log.Error("wrong put parameters", zap.Error(err))
		response.ErrorFor(c, "wrong put parameters", err)
		return
	}

	defer func() {
		// if temporary reader can be closed - close it
		if file == nil {
			return
		}
		err := file.Close()
		log.Debug(
			"close temporary multipart/form file",
			zap.String("filename", file.FileName()),
			zap.Error(err),
		)
	}()
	boundary := string(c.Request.Header.MultipartFormBoundary())
	if file, err = fetchMultipartFile(log, bodyReader(c), boundary); err != nil {
		log.Error("could not receive multipart/form", zap.Error(err))
		response.Error(c, "could not receive multipart/form: "+err.Error(), fasthttp.StatusBadRequest)
		return
	}

	staged, err := u.stage(file)
	if staged != "" {
		defer func() {
			if err := os.Remove(staged); err != nil {
				log.Warn("could not remove staged upload", zap.String("path", staged), zap.Error(err))
			}
		}()
	}
	if err != nil {
		log.Error("could not stage upload", zap.Error(err))
		response.Error(c, "could not stage upload", fasthttp.StatusInternalServerError)
		return
	}

	attributes, err := filterHeaders(log, &c.Request.Header)
	if err != nil {
		log.Error("wrong attributes", zap.Error(err))
		response.ErrorFor(c, "wrong attributes", err)
		return
	}
	// sets FileName attribute if it wasn't set from header
	if _, ok := attributes.Get(AttributeFileName); !ok {
		_ = attributes.Set(AttributeFileName, file.FileName())
	}
	// sets Timestamp attribute if it wasn't set from header and enabled by settings
	if _, ok := attributes.Get(AttributeTimestamp); !ok && u.enableDefaultTimestamp {
		_ = attributes.Set(AttributeTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	}

	session := xfer.NewSession(u.engine, log)
	d, err := session.RegisterPut(oid, staged, params, xfer.WithAttrs(attributes), xfer.WithFlags(flags))
	if err != nil {
		log.Error("could not register upload", zap.Error(err))
		response.ErrorFor(c, "could not register upload", err)
		return
	}

	start := time.Now()
	err = session.Run(c, nil)
	if u.metrics != nil {
		u.metrics.ObserveTransfer(xfer.OpPut.String(), err, time.Since(start), d.Put().Size)
	}
	if err != nil {
		log.Error("could not store file", zap.Stringer("elapsed", time.Since(start)), zap.Error(err))
		response.ErrorFor(c, "could not store file", err)
		return
	}

	// tries to return response, otherwise, if something went wrong throw error
	if err = newPutResponse(d).encode(c); err != nil {
		log.Error("could not prepare response", zap.Error(err))
		response.Error(c, "could not prepare response", fasthttp.StatusBadRequest)
		return
	}
	// reports status code and content type
	c.Response.SetStatusCode(fasthttp.StatusOK)
	c.Response.Header.SetContentType(jsonHeader)
}

// bodyReader streams the request body when the server does so.
func bodyReader(c *fasthttp.RequestCtx) io.Reader {
	if r := c.RequestBodyStream(); r != nil {
		return r
	}

	return bytes.NewReader(c.Request.Body())
}

// stage copies the upload into a local file the engine can read. The
// returned path is set whenever a file was created.
func (u *Uploader) stage(r io.Reader) (string, error) {
	f, err := os.CreateTemp(u.tempDir, "hsm-upload-*")
	if err != nil {
		return "", err
	}

	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return f.Name(), err
	}

	return f.Name(), f.Close()
}

type putResponse struct {
	OID     string `json:"object_id"`
	UUID    string `json:"uuid"`
	Version int    `json:"version"`
	Size    int64  `json:"size"`
}

func newPutResponse(d *xfer.Descriptor) *putResponse {
	return &putResponse{
		OID:     d.OID,
		UUID:    d.UUID,
		Version: d.Version,
		Size:    d.Put().Size,
	}
}

func (pr *putResponse) encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(pr)
}
