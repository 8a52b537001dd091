package uploader

import (
	"bytes"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const userAttributeHeaderPrefix = "X-Attribute-"

// filterHeaders collects 'X-Attribute-*' headers into object metadata.
func filterHeaders(l *zap.Logger, header *fasthttp.RequestHeader) (*attrs.Set, error) {
	var (
		result = new(attrs.Set)
		prefix = []byte(userAttributeHeaderPrefix)
		err    error
	)

	header.VisitAll(func(key, val []byte) {
		if err != nil || len(key) == 0 || len(val) == 0 {
			return
		}

		if !bytes.HasPrefix(key, prefix) {
			return
		}

		key = bytes.TrimPrefix(key, prefix)
		if len(key) == 0 {
			return
		}

		k, v := string(key), string(val)
		if err = result.Set(k, v); err != nil {
			return
		}

		l.Debug("add attribute to result object",
			zap.String("key", k),
			zap.String("val", v))
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}
