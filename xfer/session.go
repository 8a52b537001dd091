package xfer

import (
	"context"
	"fmt"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"go.uber.org/zap"
)

// CompletionFunc is called by the engine once per finished descriptor, in
// any order, with the descriptor's outcome.
type CompletionFunc func(d *Descriptor, err error)

// Engine moves data for batches of descriptors. Each call blocks until the
// whole batch is processed and returns the batch status.
type Engine interface {
	Put(ctx context.Context, batch []*Descriptor, done CompletionFunc) error
	Get(ctx context.Context, batch []*Descriptor, done CompletionFunc) error
	GetMD(ctx context.Context, batch []*Descriptor, done CompletionFunc) error
}

// Result holds what the engine reports besides the batch status.
type Result struct {
	// NodeName is the host suggested by the engine for a GET batch.
	NodeName string
}

// Option customizes a registered descriptor.
type Option func(*Descriptor)

// WithUUID addresses a specific object generation family.
func WithUUID(uuid string) Option {
	return func(d *Descriptor) { d.UUID = uuid }
}

// WithVersion addresses a specific generation.
func WithVersion(version int) Option {
	return func(d *Descriptor) { d.Version = version }
}

// WithAttrs attaches user metadata.
func WithAttrs(a *attrs.Set) Option {
	return func(d *Descriptor) {
		if a != nil {
			d.Attrs = *a
		}
	}
}

// WithFlags sets transfer flags.
func WithFlags(flags Flags) Option {
	return func(d *Descriptor) { d.Flags |= flags }
}

// WithPutParams sets PUT parameters.
func WithPutParams(p PutParams) Option {
	return func(d *Descriptor) { d.Params = &p }
}

// Session queues descriptors per operation and dispatches them.
type Session struct {
	engine  Engine
	log     *zap.Logger
	batches map[Op][]*Descriptor
}

// runOrder is the dispatch order of Run: reads before writes.
var runOrder = []Op{OpGetMD, OpGet, OpPut}

// NewSession creates a session dispatching to engine.
func NewSession(engine Engine, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}

	return &Session{
		engine:  engine,
		log:     log,
		batches: make(map[Op][]*Descriptor),
	}
}

// Register queues a descriptor. No file is touched until Execute.
func (s *Session) Register(op Op, oid, path string, opts ...Option) (*Descriptor, error) {
	if !op.batched() {
		return nil, fmt.Errorf("%w: %s is not a batched operation", hsmerr.ErrInvalidArgument, op)
	}

	d := &Descriptor{OID: oid, Op: op, Path: path}
	for _, o := range opts {
		o(d)
	}

	if d.Params == nil {
		if op == OpPut {
			d.Params = new(PutParams)
		} else {
			d.Params = new(GetParams)
		}
	}

	if err := d.validate(); err != nil {
		return nil, err
	}

	s.batches[op] = append(s.batches[op], d)

	return d, nil
}

// RegisterPut queues a PUT of path to oid.
func (s *Session) RegisterPut(oid, path string, params PutParams, opts ...Option) (*Descriptor, error) {
	return s.Register(OpPut, oid, path, append(opts, WithPutParams(params))...)
}

// RegisterGet queues a GET of oid to path.
func (s *Session) RegisterGet(oid, path string, opts ...Option) (*Descriptor, error) {
	return s.Register(OpGet, oid, path, opts...)
}

// RegisterGetMD queues a metadata retrieval of oid.
func (s *Session) RegisterGetMD(oid string, opts ...Option) (*Descriptor, error) {
	return s.Register(OpGetMD, oid, "", opts...)
}

// Pending returns the number of queued descriptors of op.
func (s *Session) Pending(op Op) int {
	return len(s.batches[op])
}

// Clear drops every queued descriptor.
func (s *Session) Clear() {
	for op, batch := range s.batches {
		for _, d := range batch {
			_ = d.Release()
		}
		delete(s.batches, op)
	}
}

func (s *Session) dispatch(ctx context.Context, op Op, batch []*Descriptor, done CompletionFunc) error {
	switch op {
	case OpPut:
		return s.engine.Put(ctx, batch, done)
	case OpGet:
		return s.engine.Get(ctx, batch, done)
	default:
		return s.engine.GetMD(ctx, batch, done)
	}
}

// Execute dispatches the queued batch of op and removes it from the queue.
//
// Files are opened first. A descriptor whose file cannot be opened is
// completed with that failure and left out of the engine call, its siblings
// are still dispatched. Every descriptor is released before returning. Any
// failure yields an *hsmerr.IOError naming the whole batch; on a GET batch
// the destination files created by this call are removed.
func (s *Session) Execute(ctx context.Context, op Op, done CompletionFunc) (Result, error) {
	var res Result

	batch := s.batches[op]
	delete(s.batches, op)
	if len(batch) == 0 {
		return res, nil
	}

	log := s.log.With(zap.Stringer("op", op), zap.Int("count", len(batch)))

	defer func() {
		for _, d := range batch {
			if err := d.Release(); err != nil {
				log.Warn("could not close transfer file", zap.String("path", d.Path), zap.Error(err))
			}
		}
	}()

	complete := func(d *Descriptor, err error) {
		d.Result = err
		if done != nil {
			done(d, err)
		}
	}

	var (
		failure error
		ready   = make([]*Descriptor, 0, len(batch))
	)
	for _, d := range batch {
		if err := d.open(); err != nil {
			log.Error("could not open transfer file",
				zap.String("oid", d.ID()), zap.String("path", d.Path), zap.Error(err))
			if failure == nil {
				failure = err
			}
			_ = d.Release()
			complete(d, err)
			continue
		}
		ready = append(ready, d)
	}

	if len(ready) > 0 {
		if err := s.dispatch(ctx, op, ready, complete); err != nil {
			failure = err
		}
	}

	if op == OpGet {
		if p := batch[0].Get(); p != nil && p.NodeName != "" {
			res.NodeName = p.NodeName
			log.Info("current host is not the best host to serve the object, retry on the suggested node",
				zap.String("oid", batch[0].ID()), zap.String("node", p.NodeName))
		}
	}

	if failure == nil {
		return res, nil
	}

	if op == OpGet {
		for _, d := range batch {
			_ = d.Release()
			if err := d.removeCreated(); err != nil {
				log.Warn("could not remove destination file", zap.String("path", d.Path), zap.Error(err))
			}
		}
	}

	return res, batchError(op, batch, failure, res.NodeName)
}

func batchError(op Op, batch []*Descriptor, failure error, node string) error {
	e := &hsmerr.IOError{
		Op:       op.String(),
		Code:     hsmerr.Code(failure),
		ObjIDs:   make([]string, 0, len(batch)),
		NodeName: node,
	}

	for _, d := range batch {
		e.ObjIDs = append(e.ObjIDs, d.ID())
		if op != OpGetMD {
			e.Paths = append(e.Paths, d.Path)
		}
	}

	return e
}

// Run executes the pending GETMD, GET and PUT batches in that order and
// stops at the first failing one. The queues are empty when Run returns.
func (s *Session) Run(ctx context.Context, done CompletionFunc) error {
	defer s.Clear()

	for _, op := range runOrder {
		if _, err := s.Execute(ctx, op, done); err != nil {
			return err
		}
	}

	return nil
}
