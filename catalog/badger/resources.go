package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func insertNew(txn *badger.Txn, key []byte, v any) error {
	found, err := exists(txn, key)
	if err != nil {
		return err
	}
	if found {
		return errors.Wrapf(hsmerr.ErrExists, "'%s'", key)
	}

	return putJSON(txn, key, v)
}

// InsertDevices implements catalog.Catalog.
func (s *Store) InsertDevices(ctx context.Context, devices []catalog.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range devices {
			if err := insertNew(txn, keyResource(catalog.KindDevice, devices[i].ID), &devices[i]); err != nil {
				return errors.Wrap(err, "insert device")
			}
		}
		return nil
	})
}

// ListDevices implements catalog.Catalog.
func (s *Store) ListDevices(ctx context.Context, family resource.Family) ([]catalog.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res []catalog.Device
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, keyResourceFamilyPrefix(catalog.KindDevice, family), func(_ []byte, d *catalog.Device) error {
			res = append(res, *d)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list devices")
	}

	return res, nil
}

// UpdateDevices implements catalog.Catalog.
func (s *Store) UpdateDevices(ctx context.Context, devices []catalog.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range devices {
			key := keyResource(catalog.KindDevice, devices[i].ID)
			found, err := exists(txn, key)
			if err != nil {
				return err
			}
			if !found {
				return errors.Wrapf(hsmerr.ErrNotFound, "update device '%s'", devices[i].ID)
			}
			if err := putJSON(txn, key, &devices[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertMedia implements catalog.Catalog.
func (s *Store) InsertMedia(ctx context.Context, media []catalog.Medium) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range media {
			if err := insertNew(txn, keyResource(catalog.KindMedium, media[i].ID), &media[i]); err != nil {
				return errors.Wrap(err, "insert medium")
			}
		}
		return nil
	})
}

// GetMedium implements catalog.Catalog.
func (s *Store) GetMedium(ctx context.Context, id resource.ID) (*catalog.Medium, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := new(catalog.Medium)
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyResource(catalog.KindMedium, id), m)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "medium '%s'", id)
	}

	return m, nil
}

// ListMedia implements catalog.Catalog.
func (s *Store) ListMedia(ctx context.Context, q catalog.MediumQuery) ([]catalog.Medium, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res []catalog.Medium
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, keyResourceFamilyPrefix(catalog.KindMedium, q.Family), func(_ []byte, m *catalog.Medium) error {
			if q.Match(m) {
				res = append(res, *m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list media")
	}

	return res, nil
}

// UpdateMedium implements catalog.Catalog.
func (s *Store) UpdateMedium(ctx context.Context, medium *catalog.Medium) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := keyResource(catalog.KindMedium, medium.ID)
	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return hsmerr.ErrNotFound
		}
		return putJSON(txn, key, medium)
	})
	if err != nil {
		return errors.Wrapf(err, "update medium '%s'", medium.ID)
	}

	return nil
}

// lockable is a device or medium record decoded for a lock update.
type lockable struct {
	key   []byte
	value any
	lock  *catalog.Lock
}

func loadLockable(txn *badger.Txn, kind catalog.Kind, id resource.ID) (*lockable, error) {
	rec := &lockable{key: keyResource(kind, id)}

	switch kind {
	case catalog.KindDevice:
		d := new(catalog.Device)
		rec.value, rec.lock = d, &d.Lock
	case catalog.KindMedium:
		m := new(catalog.Medium)
		rec.value, rec.lock = m, &m.Lock
	default:
		return nil, errors.Wrapf(hsmerr.ErrInvalidArgument, "%s records cannot be locked", kind)
	}

	if err := getJSON(txn, rec.key, rec.value); err != nil {
		return nil, errors.Wrapf(err, "%s '%s'", kind, id)
	}

	return rec, nil
}

// updateLocks loads every record, lets apply decide the new lock and stores
// them all at once, so a failing record leaves every lock untouched.
func (s *Store) updateLocks(ctx context.Context, kind catalog.Kind, ids []resource.ID,
	apply func(id resource.ID, current *catalog.Lock) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(ids) == 0 {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "no resource to lock")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		changed := make([]*lockable, 0, len(ids))
		for _, id := range ids {
			rec, err := loadLockable(txn, kind, id)
			if err != nil {
				return err
			}

			dirty, err := apply(id, rec.lock)
			if err != nil {
				return err
			}
			if dirty {
				changed = append(changed, rec)
			}
		}

		for _, rec := range changed {
			if err := putJSON(txn, rec.key, rec.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lock implements catalog.Catalog.
func (s *Store) Lock(ctx context.Context, kind catalog.Kind, ids []resource.ID, owner catalog.Lock, forced bool) error {
	if !owner.Held() {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "lock owner has no hostname")
	}

	if owner.Timestamp.IsZero() {
		owner.Timestamp = time.Now()
	}

	err := s.updateLocks(ctx, kind, ids, func(id resource.ID, current *catalog.Lock) (bool, error) {
		if current.Owns(owner) {
			return false, nil
		}
		if current.Held() && !forced {
			return false, errors.Wrapf(hsmerr.ErrResourceBusy, "%s '%s' is locked by '%s'", kind, id, current)
		}
		if current.Held() {
			s.log.Warn("lock overridden",
				zap.Stringer("resource", id), zap.Stringer("holder", current), zap.Stringer("owner", owner))
		}
		*current = owner
		return true, nil
	})
	if err != nil {
		return errors.Wrapf(err, "lock %s(s) '%s'", kind, resource.Names(ids))
	}

	return nil
}

// Unlock implements catalog.Catalog.
func (s *Store) Unlock(ctx context.Context, kind catalog.Kind, ids []resource.ID, owner catalog.Lock, forced bool) error {
	err := s.updateLocks(ctx, kind, ids, func(id resource.ID, current *catalog.Lock) (bool, error) {
		if !current.Held() {
			return false, nil
		}
		if !current.Owns(owner) && !forced {
			return false, errors.Wrapf(hsmerr.ErrResourceBusy, "%s '%s' is locked by '%s'", kind, id, current)
		}
		*current = catalog.Lock{}
		return true, nil
	})
	if err != nil {
		return errors.Wrapf(err, "unlock %s(s) '%s'", kind, resource.Names(ids))
	}

	return nil
}
