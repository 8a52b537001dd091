package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// InsertObject implements catalog.Catalog.
func (s *Store) InsertObject(ctx context.Context, obj *catalog.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if obj.OID == "" || obj.UUID == "" {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "object must have an oid and a uuid")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, keyObject(obj.OID))
		if err != nil {
			return err
		}
		if found {
			return errors.Wrapf(hsmerr.ErrExists, "object '%s'", obj.OID)
		}

		live := *obj
		live.DeprecTime = nil
		return putJSON(txn, keyObject(obj.OID), &live)
	})
}

// commitRetries bounds the retries of a commit losing a badger conflict.
const commitRetries = 3

// CommitObject implements catalog.Catalog.
func (s *Store) CommitObject(ctx context.Context, obj *catalog.Object, layout *catalog.Layout, replace bool) error {
	if obj.OID == "" || obj.UUID == "" {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "object must have an oid and a uuid")
	}
	if layout.UUID != obj.UUID || layout.Version != obj.Version {
		return errors.Wrapf(hsmerr.ErrInvalidArgument, "layout of '%s' does not match the object generation", obj.OID)
	}

	l := *layout
	l.ExtentCount = len(l.Extents)

	var err error
	for range commitRetries {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			return commit(txn, obj, &l, replace)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.log.Debug("object commit conflict, retrying", zap.String("oid", obj.OID))
	}
	if err != nil {
		return errors.Wrapf(err, "commit object '%s' version %d", obj.OID, obj.Version)
	}

	return nil
}

func commit(txn *badger.Txn, obj *catalog.Object, layout *catalog.Layout, replace bool) error {
	live, err := getLive(txn, obj.OID)
	switch {
	case errors.Is(err, hsmerr.ErrNotFound):
		if replace {
			return errors.Wrapf(hsmerr.ErrNotFound, "object '%s' to overwrite", obj.OID)
		}
	case err != nil:
		return err
	case !replace:
		return errors.Wrapf(hsmerr.ErrExists, "object '%s'", obj.OID)
	case live.UUID != obj.UUID || live.Version != obj.Version-1:
		return errors.Wrapf(hsmerr.ErrExists, "object '%s' was overwritten with version %d", obj.OID, live.Version)
	}

	key := keyLayout(layout.UUID, layout.Version)
	found, err := exists(txn, key)
	if err != nil {
		return err
	}
	if found {
		return errors.Wrapf(hsmerr.ErrExists, "layout of '%s' version %d", obj.OID, obj.Version)
	}

	if replace {
		if _, err := deprecate(txn, obj.OID); err != nil {
			return err
		}
	}
	if err := putJSON(txn, key, layout); err != nil {
		return err
	}

	cur := *obj
	cur.DeprecTime = nil
	return putJSON(txn, keyObject(obj.OID), &cur)
}

func getLive(txn *badger.Txn, oid string) (*catalog.Object, error) {
	obj := new(catalog.Object)
	if err := getJSON(txn, keyObject(oid), obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// findLiveByUUID scans live objects, uuids are not indexed.
func findLiveByUUID(txn *badger.Txn, uuid string) (*catalog.Object, error) {
	var res *catalog.Object
	err := scanJSON(txn, []byte(prefixObject), func(_ []byte, o *catalog.Object) error {
		if o.UUID == uuid {
			res = o
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, hsmerr.ErrNotFound
	}

	return res, nil
}

// latestDeprecated returns the deprecated generation matching oid and uuid
// (either may be empty) with the given version, or the most recent one when
// version <= 0.
func latestDeprecated(txn *badger.Txn, oid, uuid string, version int) (*catalog.Object, error) {
	prefix := []byte(prefixDeprecated)
	if uuid != "" {
		prefix = keyDeprecatedPrefix(uuid)
	}

	var res *catalog.Object
	err := scanJSON(txn, prefix, func(_ []byte, o *catalog.Object) error {
		if oid != "" && o.OID != oid {
			return nil
		}
		if version > 0 {
			if o.Version == version {
				res = o
			}
			return nil
		}
		if res == nil || o.DeprecTime.After(*res.DeprecTime) ||
			(o.DeprecTime.Equal(*res.DeprecTime) && o.Version > res.Version) {
			res = o
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, hsmerr.ErrNotFound
	}

	return res, nil
}

func matchesGeneration(o *catalog.Object, uuid string, version int) bool {
	return (uuid == "" || o.UUID == uuid) && (version <= 0 || o.Version == version)
}

// FindObject implements catalog.Catalog.
func (s *Store) FindObject(ctx context.Context, oid, uuid string, version int) (*catalog.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if oid == "" && uuid == "" {
		return nil, errors.Wrap(hsmerr.ErrInvalidArgument, "object oid or uuid is required")
	}

	var res *catalog.Object
	err := s.db.View(func(txn *badger.Txn) error {
		var (
			live *catalog.Object
			err  error
		)
		if oid != "" {
			live, err = getLive(txn, oid)
		} else {
			live, err = findLiveByUUID(txn, uuid)
		}
		if err == nil && matchesGeneration(live, uuid, version) {
			res = live
			return nil
		}
		if err != nil && !errors.Is(err, hsmerr.ErrNotFound) {
			return err
		}

		res, err = latestDeprecated(txn, oid, uuid, version)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "object (oid '%s', uuid '%s', version %d)", oid, uuid, version)
	}

	return res, nil
}

// ListObjects implements catalog.Catalog.
func (s *Store) ListObjects(ctx context.Context, q catalog.ObjectQuery) ([]catalog.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}

	var res []catalog.Object
	collect := func(_ []byte, o *catalog.Object) error {
		if match(o) {
			res = append(res, *o)
		}
		return nil
	}

	err = s.db.View(func(txn *badger.Txn) error {
		if err := scanJSON(txn, []byte(prefixObject), collect); err != nil {
			return err
		}
		if !q.Deprecated {
			return nil
		}
		return scanJSON(txn, []byte(prefixDeprecated), collect)
	})
	if err != nil {
		return nil, errors.Wrap(err, "list objects")
	}

	catalog.SortObjects(res, q.Sort)

	return res, nil
}

func deprecate(txn *badger.Txn, oid string) (*catalog.Object, error) {
	live, err := getLive(txn, oid)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	live.DeprecTime = &now

	if err := putJSON(txn, keyDeprecated(live.UUID, live.Version), live); err != nil {
		return nil, err
	}

	return live, txn.Delete(keyObject(oid))
}

// DeprecateObject implements catalog.Catalog.
func (s *Store) DeprecateObject(ctx context.Context, oid string) (*catalog.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *catalog.Object
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		res, err = deprecate(txn, oid)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "deprecate object '%s'", oid)
	}

	return res, nil
}

// DeleteObject implements catalog.Catalog.
func (s *Store) DeleteObject(ctx context.Context, oid string, hard bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if !hard {
			_, err := deprecate(txn, oid)
			return err
		}

		var keys [][]byte
		live, err := getLive(txn, oid)
		switch {
		case err == nil:
			keys = append(keys, keyObject(oid), keyLayout(live.UUID, live.Version))
		case !errors.Is(err, hsmerr.ErrNotFound):
			return err
		}

		err = scanJSON(txn, []byte(prefixDeprecated), func(key []byte, o *catalog.Object) error {
			if o.OID == oid {
				keys = append(keys, key, keyLayout(o.UUID, o.Version))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return hsmerr.ErrNotFound
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete object '%s'", oid)
	}

	s.log.Debug("object deleted", zap.String("oid", oid), zap.Bool("hard", hard))

	return nil
}

// UndeleteObject implements catalog.Catalog.
func (s *Store) UndeleteObject(ctx context.Context, oid, uuid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if oid == "" && uuid == "" {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "undelete needs an oid or a uuid")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		dep, err := latestDeprecated(txn, oid, uuid, 0)
		if err != nil {
			return err
		}

		found, err := exists(txn, keyObject(dep.OID))
		if err != nil {
			return err
		}
		if found {
			return errors.Wrapf(hsmerr.ErrExists, "live object '%s'", dep.OID)
		}

		if err := txn.Delete(keyDeprecated(dep.UUID, dep.Version)); err != nil {
			return err
		}

		dep.DeprecTime = nil
		return putJSON(txn, keyObject(dep.OID), dep)
	})
	if err != nil {
		return errors.Wrapf(err, "undelete object (oid '%s', uuid '%s')", oid, uuid)
	}

	return nil
}

// RenameObject implements catalog.Catalog.
func (s *Store) RenameObject(ctx context.Context, oldOID, uuid, newOID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if newOID == "" {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "new oid is empty")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if uuid == "" {
			src, err := getLive(txn, oldOID)
			if errors.Is(err, hsmerr.ErrNotFound) {
				src, err = latestDeprecated(txn, oldOID, "", 0)
			}
			if err != nil {
				return err
			}
			uuid = src.UUID
		}

		if found, err := exists(txn, keyObject(newOID)); err != nil {
			return err
		} else if found {
			return errors.Wrapf(hsmerr.ErrExists, "object '%s'", newOID)
		}

		var renamed int
		if live, err := findLiveByUUID(txn, uuid); err == nil {
			if err := txn.Delete(keyObject(live.OID)); err != nil {
				return err
			}
			live.OID = newOID
			if err := putJSON(txn, keyObject(newOID), live); err != nil {
				return err
			}
			renamed++
		} else if !errors.Is(err, hsmerr.ErrNotFound) {
			return err
		}

		var deprecated []*catalog.Object
		if err := scanJSON(txn, keyDeprecatedPrefix(uuid), func(_ []byte, o *catalog.Object) error {
			deprecated = append(deprecated, o)
			return nil
		}); err != nil {
			return err
		}
		for _, o := range deprecated {
			o.OID = newOID
			if err := putJSON(txn, keyDeprecated(o.UUID, o.Version), o); err != nil {
				return err
			}
			renamed++
		}
		if renamed == 0 {
			return hsmerr.ErrNotFound
		}

		var layouts []*catalog.Layout
		if err := scanJSON(txn, keyLayoutPrefix(uuid), func(_ []byte, l *catalog.Layout) error {
			layouts = append(layouts, l)
			return nil
		}); err != nil {
			return err
		}
		for _, l := range layouts {
			l.OID = newOID
			if err := putJSON(txn, keyLayout(l.UUID, l.Version), l); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "rename object (oid '%s', uuid '%s') to '%s'", oldOID, uuid, newOID)
	}

	return nil
}
