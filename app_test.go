package main

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/fasthttp/router"
	cbadger "github.com/nspcc-dev/hsm-http-gw/catalog/badger"
	"github.com/nspcc-dev/hsm-http-gw/engine/local"
	"github.com/nspcc-dev/hsm-http-gw/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

func serve(h fasthttp.RequestHandler, uri string) *fasthttp.RequestCtx {
	c := new(fasthttp.RequestCtx)
	c.Init(new(fasthttp.Request), nil, nil)
	c.Request.SetRequestURI(uri)
	h(c)
	return c
}

func TestHealthy(t *testing.T) {
	state := atomic.NewError(nil)

	r := router.New()
	attachHealthy(r, state)

	c := serve(r.Handler, "/-/ready/")
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())

	c = serve(r.Handler, "/-/healthy/")
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
	require.Equal(t, healthyState+"healthy", string(c.Response.Body()))

	state.Store(errors.New("engine is offline"))
	c = serve(r.Handler, "/-/healthy/")
	require.Equal(t, fasthttp.StatusServiceUnavailable, c.Response.StatusCode())
	require.Contains(t, string(c.Response.Body()), "engine is offline")
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewGateMetrics(reg)
	m.SetHealth(1)

	c := serve(metricsHandler(reg, zaptest.NewLogger(t)), "/metrics/")
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())
	require.Contains(t, string(c.Response.Body()), "hsm_http_gw_state_health 1")
}

func TestProfiler(t *testing.T) {
	r := router.New()
	attachProfiler(r)

	c := serve(r.Handler, "/debug/pprof/cmdline")
	require.Equal(t, fasthttp.StatusOK, c.Response.StatusCode())

	c = serve(r.Handler, "/debug/pprof/nope")
	require.Equal(t, fasthttp.StatusNotFound, c.Response.StatusCode())
}

func TestEngineSettings(t *testing.T) {
	v := viper.New()
	v.SetDefault("engine.default_family", "dir")
	v.Set("engine.hostname", "node-1")
	v.Set("engine.aliases.fast.tags", []string{"ssd"})

	cfg, err := local.DecodeConfig(engineSettings(v))
	require.NoError(t, err)
	require.Equal(t, "node-1", cfg.Hostname)
	require.Equal(t, "dir", cfg.DefaultFamily)
	require.Equal(t, []string{"ssd"}, cfg.Aliases["fast"].Tags)

	require.Nil(t, engineSettings(viper.New()))
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	cat, err := cbadger.Open(ctx, cbadger.Config{InMemory: true}, log)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cat.Close()) })

	e, err := local.New(cat, local.Config{Hostname: "node-1"}, log)
	require.NoError(t, err)

	a := &app{
		log:       log,
		catalog:   cat,
		engine:    e,
		metrics:   metrics.NewGateMetrics(prometheus.NewRegistry()),
		unhealthy: atomic.NewError(nil),
	}

	a.probe(ctx)
	require.NoError(t, a.unhealthy.Load())

	e.SetOnline(false)
	a.probe(ctx)
	require.ErrorIs(t, a.unhealthy.Load(), syscall.ENXIO)

	e.SetOnline(true)
	a.probe(ctx)
	require.NoError(t, a.unhealthy.Load())
}
