// Package objects lists, deletes, restores, renames and locates stored
// objects through the transfer engine.
package objects

import (
	"context"
	"fmt"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"go.uber.org/zap"
)

// Engine is the part of the transfer engine serving object commands.
// Every list returned by ListObjects must be passed to FreeObjects once.
type Engine interface {
	ListObjects(ctx context.Context, q catalog.ObjectQuery) ([]catalog.Object, error)
	FreeObjects(objs []catalog.Object)

	Delete(ctx context.Context, batch []*xfer.Descriptor) error
	Undelete(ctx context.Context, batch []*xfer.Descriptor) error
	Rename(ctx context.Context, oldOID, uuid, newOID string) error
	Locate(ctx context.Context, oid, uuid string, version int, focusHost string) (string, int, error)
}

// Client issues object commands.
type Client struct {
	engine Engine
	log    *zap.Logger
}

// New creates a client over engine.
func New(engine Engine, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{engine: engine, log: log}
}

// ListParams filter an object listing.
type ListParams struct {
	Resources []string
	Pattern   bool
	// Metadata holds "key=value" filters, all of them must match.
	Metadata   []string
	Deprecated bool
	StatusMask catalog.ObjectStatus
	SortField  string
	Reverse    bool
}

// ObjectList is a listing owned by the engine until Release.
type ObjectList struct {
	records  []catalog.Object
	free     func([]catalog.Object)
	released bool
}

// Records returns the listed objects, nil once released.
func (l *ObjectList) Records() []catalog.Object {
	if l.released {
		return nil
	}

	return l.records
}

// Release hands the records back to the engine.
func (l *ObjectList) Release() {
	if l.released {
		return
	}

	l.released = true
	l.free(l.records)
	l.records = nil
}

// List returns the objects matching p. A bad sort field fails before the
// engine is contacted.
func (c *Client) List(ctx context.Context, p ListParams) (*ObjectList, error) {
	q := catalog.ObjectQuery{
		Resources:  p.Resources,
		Pattern:    p.Pattern,
		Metadata:   p.Metadata,
		Deprecated: p.Deprecated,
		StatusMask: p.StatusMask,
	}

	if p.SortField != "" {
		kind := catalog.KindObject
		if p.Deprecated {
			kind = catalog.KindDeprecated
		}

		s, err := catalog.NewSort(kind, p.SortField, p.Reverse)
		if err != nil {
			return nil, err
		}
		q.Sort = s
	}

	if _, err := catalog.ParseMetadata(p.Metadata); err != nil {
		return nil, err
	}

	objs, err := c.engine.ListObjects(ctx, q)
	if err != nil {
		return nil, hsmerr.NewEngineError("object list", "", err)
	}

	return &ObjectList{records: objs, free: c.engine.FreeObjects}, nil
}

func descriptors(op xfer.Op, oids, uuids []string, flags xfer.Flags) []*xfer.Descriptor {
	batch := make([]*xfer.Descriptor, 0, len(oids)+len(uuids))
	for _, oid := range oids {
		batch = append(batch, &xfer.Descriptor{Op: op, OID: oid, Flags: flags})
	}
	for _, uuid := range uuids {
		batch = append(batch, &xfer.Descriptor{Op: op, UUID: uuid, Flags: flags})
	}

	return batch
}

// Delete deprecates the objects, or removes them with every generation when
// hard is set.
func (c *Client) Delete(ctx context.Context, oids []string, hard bool) error {
	if len(oids) == 0 {
		return fmt.Errorf("%w: no object to delete", hsmerr.ErrInvalidArgument)
	}

	var flags xfer.Flags
	if hard {
		flags |= xfer.FlagHardDelete
	}

	err := c.engine.Delete(ctx, descriptors(xfer.OpDelete, oids, nil, flags))
	if err != nil {
		return hsmerr.NewEngineError("object delete", "objid(s) '"+strings.Join(oids, ", ")+"'", err)
	}

	c.log.Debug("objects deleted", zap.Strings("oids", oids), zap.Bool("hard", hard))

	return nil
}

// Undelete restores deprecated objects, addressed either by oid or by uuid.
func (c *Client) Undelete(ctx context.Context, oids, uuids []string) error {
	var (
		mode   string
		target []string
	)

	switch {
	case len(oids) > 0 && len(uuids) > 0:
		return fmt.Errorf("%w: undelete takes oids or uuids, not both", hsmerr.ErrInvalidArgument)
	case len(oids) > 0:
		mode, target = "oids", oids
	case len(uuids) > 0:
		mode, target = "uuids", uuids
	default:
		return fmt.Errorf("%w: no object to undelete", hsmerr.ErrInvalidArgument)
	}

	err := c.engine.Undelete(ctx, descriptors(xfer.OpUndelete, oids, uuids, 0))
	if err != nil {
		return hsmerr.NewEngineError("object undelete", mode+" '"+strings.Join(target, ", ")+"'", err)
	}

	return nil
}

// Rename renames the object identified by oldOID or by uuid.
func (c *Client) Rename(ctx context.Context, oldOID, uuid, newOID string) error {
	if (oldOID == "") == (uuid == "") {
		return fmt.Errorf("%w: rename needs exactly one of old oid and uuid", hsmerr.ErrInvalidArgument)
	}
	if newOID == "" {
		return fmt.Errorf("%w: rename needs a new oid", hsmerr.ErrInvalidArgument)
	}

	target := "oid '" + oldOID + "'"
	if uuid != "" {
		target = "uuid '" + uuid + "'"
	}

	if err := c.engine.Rename(ctx, oldOID, uuid, newOID); err != nil {
		return hsmerr.NewEngineError("object rename", target, err)
	}

	return nil
}

// Location is the host best placed to serve an object.
type Location struct {
	// Hostname is empty when any host may serve the object.
	Hostname string
	// NewLocks counts the media locks taken for the host. They are released
	// by the next access from that host.
	NewLocks int
}

// Locate asks which host should serve the object. A non-empty focusHost
// locates the object for that host instead of the local one.
func (c *Client) Locate(ctx context.Context, oid, uuid string, version int, focusHost string) (Location, error) {
	if oid == "" && uuid == "" {
		return Location{}, fmt.Errorf("%w: locate needs an oid or a uuid", hsmerr.ErrInvalidArgument)
	}

	host, locks, err := c.engine.Locate(ctx, oid, uuid, version, focusHost)
	if err != nil {
		target := oid
		if target == "" {
			target = uuid
		}
		return Location{}, hsmerr.NewEngineError("object locate", "'"+target+"'", err)
	}

	return Location{Hostname: host, NewLocks: locks}, nil
}
