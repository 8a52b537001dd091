// Package local is a single node engine serving transfers, object commands
// and administration over a catalog. Data movement is implemented for the
// dir family only, an extent being a file inside the medium directory.
package local

import (
	"context"
	"os"
	"syscall"

	"github.com/nspcc-dev/hsm-http-gw/admin"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/objects"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Engine is safe for concurrent use, every state change goes through the
// catalog.
type Engine struct {
	cat   catalog.Catalog
	cfg   Config
	log   *zap.Logger
	owner catalog.Lock

	online      atomic.Bool
	outstanding atomic.Int64
}

var (
	_ xfer.Engine       = (*Engine)(nil)
	_ objects.Engine    = (*Engine)(nil)
	_ admin.Handle      = (*Engine)(nil)
	_ admin.Initializer = (*Engine)(nil)
)

// New creates an online engine.
func New(cat catalog.Catalog, cfg Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cat:   cat,
		cfg:   cfg,
		log:   log,
		owner: catalog.Lock{Hostname: cfg.Hostname, PID: os.Getpid()},
	}
	e.online.Store(true)

	return e, nil
}

// Hostname returns the name of this node.
func (e *Engine) Hostname() string {
	return e.cfg.Hostname
}

// SetOnline switches the transfer subsystem on or off.
func (e *Engine) SetOnline(online bool) {
	e.online.Store(online)
}

// Online reports whether transfers are served.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Outstanding returns the number of lists not freed yet.
func (e *Engine) Outstanding() int64 {
	return e.outstanding.Load()
}

// Init implements admin.Initializer.
func (e *Engine) Init(_ context.Context, requireTransfer bool) (admin.Handle, error) {
	if requireTransfer && !e.Online() {
		return nil, syscall.ENXIO
	}

	return e, nil
}

// Fini implements admin.Handle.
func (e *Engine) Fini() error {
	return nil
}

// ListObjects implements objects.Engine.
func (e *Engine) ListObjects(ctx context.Context, q catalog.ObjectQuery) ([]catalog.Object, error) {
	objs, err := e.cat.ListObjects(ctx, q)
	if err != nil {
		return nil, err
	}

	e.outstanding.Inc()

	return objs, nil
}

// FreeObjects implements objects.Engine.
func (e *Engine) FreeObjects([]catalog.Object) {
	e.release()
}

// ListLayouts implements admin.Handle.
func (e *Engine) ListLayouts(ctx context.Context, q catalog.LayoutQuery) ([]catalog.Layout, error) {
	layouts, err := e.cat.ListLayouts(ctx, q)
	if err != nil {
		return nil, err
	}

	e.outstanding.Inc()

	return layouts, nil
}

// FreeLayouts implements admin.Handle.
func (e *Engine) FreeLayouts([]catalog.Layout) {
	e.release()
}

func (e *Engine) release() {
	if e.outstanding.Dec() < 0 {
		e.log.Error("list freed more than once")
		e.outstanding.Inc()
	}
}

// checkOnline fails transfers while the engine is offline.
func (e *Engine) checkOnline() error {
	if !e.Online() {
		return syscall.ENXIO
	}

	return nil
}

// forEach runs fn for every descriptor, reports each outcome to done and
// returns the first failure.
func forEach(batch []*xfer.Descriptor, done xfer.CompletionFunc, fn func(*xfer.Descriptor) error) error {
	var first error
	for _, d := range batch {
		err := fn(d)
		if done != nil {
			done(d, err)
		}
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}
