package downloader

import (
	"time"

	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/valyala/fasthttp"
)

// HeadByOID describes the object with a metadata retrieval only.
func (d *Downloader) HeadByOID(c *fasthttp.RequestCtx) {
	r, err := d.newRequest(c)
	if err != nil {
		response.ErrorFor(c, "wrong object address", err)
		return
	}

	var (
		obj     object
		start   = time.Now()
		session = xfer.NewSession(d.engine, r.log)
	)
	md, err := session.RegisterGetMD(r.oid, r.opts...)
	if err != nil {
		response.ErrorFor(c, "wrong object address", err)
		return
	}

	err = session.Run(c, metadata(r.log, &obj))
	d.observe(xfer.OpGetMD, err, start, 0)
	if err != nil {
		r.handleErr(err, start)
		return
	}

	obj.oid, obj.uuid, obj.version, obj.size = md.OID, md.UUID, md.Version, md.Get().Size
	r.setHeaders(&obj, "")
}
