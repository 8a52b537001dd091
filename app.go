package main

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/nspcc-dev/hsm-http-gw/admin"
	cbadger "github.com/nspcc-dev/hsm-http-gw/catalog/badger"
	"github.com/nspcc-dev/hsm-http-gw/downloader"
	"github.com/nspcc-dev/hsm-http-gw/engine/local"
	"github.com/nspcc-dev/hsm-http-gw/internal/ratelimiter"
	"github.com/nspcc-dev/hsm-http-gw/metrics"
	"github.com/nspcc-dev/hsm-http-gw/objects"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/rest/v1/handlers"
	"github.com/nspcc-dev/hsm-http-gw/uploader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type (
	app struct {
		log       *zap.Logger
		cfg       *viper.Viper
		web       *fasthttp.Server
		catalog   *cbadger.Store
		engine    *local.Engine
		admin     *admin.Client
		metrics   *metrics.GateMetrics
		limiter   *ratelimiter.RateLimiter
		unhealthy *atomic.Error

		jobDone chan struct{}
		webDone chan struct{}

		healthInterval time.Duration
	}

	// App is an interface for the main gateway function.
	App interface {
		Wait()
		Worker(context.Context)
		Serve(context.Context)
	}

	// Option is an application option.
	Option func(a *app)
)

// WithLogger returns Option to set a specific logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *app) {
		if l == nil {
			return
		}
		a.log = l
	}
}

// WithConfig returns Option to use specific Viper configuration.
func WithConfig(c *viper.Viper) Option {
	return func(a *app) {
		if c == nil {
			return
		}
		a.cfg = c
	}
}

func newApp(ctx context.Context, opt ...Option) App {
	a := &app{
		log:       zap.L(),
		cfg:       viper.GetViper(),
		web:       new(fasthttp.Server),
		unhealthy: atomic.NewError(nil),

		jobDone: make(chan struct{}),
		webDone: make(chan struct{}),
	}

	for i := range opt {
		opt[i](a)
	}

	a.healthInterval = a.cfg.GetDuration("health_interval")
	if a.healthInterval <= 0 {
		a.healthInterval = defaultHealthInterval
	}

	// -- setup FastHTTP server: --
	a.web.Name = "hsm-http-gw"
	a.web.ReadBufferSize = a.cfg.GetInt("web.read_buffer_size")
	a.web.WriteBufferSize = a.cfg.GetInt("web.write_buffer_size")
	a.web.ReadTimeout = a.cfg.GetDuration("web.read_timeout")
	a.web.WriteTimeout = a.cfg.GetDuration("web.write_timeout")
	a.web.StreamRequestBody = a.cfg.GetBool("web.stream_request_body")
	a.web.MaxRequestBodySize = a.cfg.GetInt("web.max_request_body_size")
	a.web.DisableHeaderNamesNormalizing = true
	a.web.NoDefaultServerHeader = true
	a.web.NoDefaultContentType = true
	// -- -- -- -- -- -- -- -- -- --

	var err error
	a.catalog, err = cbadger.Open(ctx, cbadger.Config{
		Path:     a.cfg.GetString("catalog.path"),
		InMemory: a.cfg.GetBool("catalog.in_memory"),
	}, a.log)
	if err != nil {
		a.log.Fatal("could not open catalog", zap.Error(err))
	}

	engineCfg, err := local.DecodeConfig(engineSettings(a.cfg))
	if err != nil {
		a.log.Fatal("invalid engine configuration", zap.Error(err))
	}

	if a.engine, err = local.New(a.catalog, engineCfg, a.log.Named("engine")); err != nil {
		a.log.Fatal("could not start engine", zap.Error(err))
	}

	if a.admin, err = admin.Open(ctx, a.engine, false, a.log.Named("admin")); err != nil {
		a.log.Fatal("could not open administration handle", zap.Error(err))
	}

	a.metrics = metrics.NewGateMetrics(prometheus.DefaultRegisterer)
	a.limiter = ratelimiter.New(a.cfg.GetUint("ratelimit.rps"), a.cfg.GetUint("ratelimit.burst"))

	a.log.Info("engine ready",
		zap.String("hostname", engineCfg.Hostname),
		zap.String("default_family", engineCfg.DefaultFamily),
		zap.String("default_layout", engineCfg.DefaultLayout))

	return a
}

// engineSettings extracts the engine sub-tree with flags and environment
// applied.
func engineSettings(v *viper.Viper) map[string]any {
	res, _ := v.AllSettings()["engine"].(map[string]any)
	return res
}

func (a *app) Wait() {
	a.log.Info("application started")

	select {
	case <-a.jobDone: // wait for job is stopped
		<-a.webDone
	case <-a.webDone: // wait for web-server is stopped
		<-a.jobDone
	}
}

// Worker probes the engine and the catalog until ctx is done, then closes
// them.
func (a *app) Worker(ctx context.Context) {
	dur := a.healthInterval
	tick := time.NewTimer(dur)

	a.probe(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick.C:
			a.probe(ctx)
			tick.Reset(dur)
		}
	}

	tick.Stop()

	if err := a.admin.Close(); err != nil {
		a.log.Warn("could not close administration handle", zap.Error(err))
	}
	if n := a.engine.Outstanding(); n != 0 {
		a.log.Warn("listings were not released", zap.Int64("count", n))
	}
	if err := a.catalog.Close(); err != nil {
		a.log.Error("could not close catalog", zap.Error(err))
	}

	a.log.Info("engine worker stopped")

	close(a.jobDone)
}

// probe records whether the engine can serve transfers.
func (a *app) probe(ctx context.Context) {
	var err error

	switch {
	case !a.engine.Online():
		err = fmt.Errorf("engine is offline: %w", syscall.ENXIO)
	default:
		_, err = a.catalog.ListDevices(ctx, resource.FamilyUnspecified)
		if err != nil {
			err = fmt.Errorf("catalog is not reachable: %w", err)
		}
	}

	if ctx.Err() != nil {
		return
	}

	prev := a.unhealthy.Swap(err)
	switch {
	case err != nil && prev == nil:
		a.log.Error("gateway is unhealthy", zap.Error(err))
	case err == nil && prev != nil:
		a.log.Info("gateway is healthy again")
	}

	if err == nil {
		a.metrics.SetHealth(1)
	} else {
		a.metrics.SetHealth(0)
	}
}

func (a *app) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.GetDuration("web.shutdown_timeout"))
		defer cancel()

		a.log.Info("stop web-server", zap.Error(a.web.ShutdownWithContext(sctx)))
		close(a.webDone)
	}()

	var (
		tempDir = a.cfg.GetString("transfer.temp_dir")
		objs    = objects.New(a.engine, a.log.Named("objects"))
		up      = uploader.New(a.log, a.engine, a.metrics, tempDir, a.cfg.GetBool("transfer.default_timestamp"))
		down    = downloader.New(a.log, a.engine, a.metrics, tempDir)
		api     = handlers.New(&handlers.PrmAPI{
			Logger:  a.log,
			Objects: objs,
			Admin:   a.admin,
			Metrics: a.metrics,
		})
	)

	r := router.New()
	r.RedirectTrailingSlash = true

	a.log.Info("enabled /upload/{oid} and /get/{oid}")
	r.POST("/upload/{oid:*}", a.limiter.Handler(up.Upload))
	r.GET("/get/{oid:*}", a.limiter.Handler(down.DownloadByOID))
	r.HEAD("/get/{oid:*}", down.HeadByOID)

	r.GET("/objects", api.ObjectsList)
	r.DELETE("/objects/{oid:*}", api.ObjectsDelete)
	r.POST("/objects/undelete", api.ObjectsUndelete)
	r.POST("/objects/rename", api.ObjectsRename)
	r.GET("/locate/{oid:*}", api.ObjectsLocate)

	r.POST("/devices/{family}", api.DevicesAdd)
	r.POST("/devices/{family}/lock", api.DevicesLock)
	r.POST("/devices/{family}/unlock", api.DevicesUnlock)
	r.POST("/media/format", api.MediaFormat)
	r.POST("/media/{family}", api.MediaAdd)
	r.GET("/layouts", api.LayoutsList)

	// attaching /-/(ready,healthy)
	attachHealthy(r, a.unhealthy)

	// enable metrics
	if a.cfg.GetBool("metrics") {
		a.log.Info("enabled /metrics/")
		attachMetrics(r, a.log)
	}

	// enable pprof
	if a.cfg.GetBool("pprof") {
		a.log.Info("enabled /debug/pprof/")
		attachProfiler(r)
	}

	bind := a.cfg.GetString("listen_address")
	a.log.Info("run gateway server",
		zap.String("address", bind))

	a.web.Handler = r.Handler
	if err := a.web.ListenAndServe(bind); err != nil {
		a.log.Fatal("could not start server", zap.Error(err))
	}
}
