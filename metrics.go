package main

import (
	"github.com/fasthttp/router"
	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func attachMetrics(r *router.Router, l *zap.Logger) {
	r.GET("/metrics/", metricsHandler(prometheus.DefaultGatherer, l))
}

// metricsHandler encodes every gathered family in the text exposition
// format.
func metricsHandler(reg prometheus.Gatherer, logger *zap.Logger) fasthttp.RequestHandler {
	return func(c *fasthttp.RequestCtx) {
		mfs, err := reg.Gather()
		if err != nil {
			logger.Error("could not gather metrics", zap.Error(err))
			response.Error(c, err.Error(), fasthttp.StatusServiceUnavailable)
			return
		}

		contentType := expfmt.NewFormat(expfmt.TypeTextPlain)
		c.SetContentType(string(contentType))
		enc := expfmt.NewEncoder(c, contentType)

		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				logger.Error("encoding and sending metric family", zap.Error(err))
				response.Error(c, err.Error(), fasthttp.StatusServiceUnavailable)
				return
			}
		}

		if closer, ok := enc.(expfmt.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Error("closing metrics encoder", zap.Error(err))
			}
		}
	}
}
