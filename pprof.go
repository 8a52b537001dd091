package main

import (
	"net/http/pprof"
	rtp "runtime/pprof"

	"github.com/fasthttp/router"
	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

func attachProfiler(r *router.Router) {
	h := pprofHandler()

	r.GET("/debug/pprof/", h)
	r.GET("/debug/pprof/{name}", h)
}

func pprofHandler() fasthttp.RequestHandler {
	profiles := map[string]fasthttp.RequestHandler{
		"":        fasthttpadaptor.NewFastHTTPHandlerFunc(pprof.Index),
		"cmdline": fasthttpadaptor.NewFastHTTPHandlerFunc(pprof.Cmdline),
		"profile": fasthttpadaptor.NewFastHTTPHandlerFunc(pprof.Profile),
		"symbol":  fasthttpadaptor.NewFastHTTPHandlerFunc(pprof.Symbol),
		"trace":   fasthttpadaptor.NewFastHTTPHandlerFunc(pprof.Trace),
	}

	for _, p := range rtp.Profiles() {
		profiles[p.Name()] = fasthttpadaptor.NewFastHTTPHandler(pprof.Handler(p.Name()))
	}

	return func(ctx *fasthttp.RequestCtx) {
		name, _ := ctx.UserValue("name").(string)

		if handler, ok := profiles[name]; ok {
			handler(ctx)
			return
		}

		response.Error(ctx, "unknown profile "+name, fasthttp.StatusNotFound)
	}
}
