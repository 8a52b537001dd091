package badger

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/pkg/errors"
)

// InsertLayout implements catalog.Catalog.
func (s *Store) InsertLayout(ctx context.Context, layout *catalog.Layout) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if layout.UUID == "" {
		return errors.Wrap(hsmerr.ErrInvalidArgument, "layout without object uuid")
	}

	l := *layout
	l.ExtentCount = len(l.Extents)

	err := s.db.Update(func(txn *badger.Txn) error {
		key := keyLayout(l.UUID, l.Version)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return hsmerr.ErrExists
		}
		return putJSON(txn, key, &l)
	})
	if err != nil {
		return errors.Wrapf(err, "insert layout of '%s' version %d", l.OID, l.Version)
	}

	return nil
}

// ListLayouts implements catalog.Catalog.
func (s *Store) ListLayouts(ctx context.Context, q catalog.LayoutQuery) ([]catalog.Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}

	var res []catalog.Layout
	err = s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(prefixLayout), func(_ []byte, l *catalog.Layout) error {
			if match(l) {
				res = append(res, *l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list layouts")
	}

	catalog.SortLayouts(res)

	return res, nil
}
