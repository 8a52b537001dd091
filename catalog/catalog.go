// Package catalog defines the records of the HSM metadata catalog and the
// interface engines use to persist and query them.
//
// The catalog is the only source of truth for devices and media: clients
// never cache its records and re-read them on every administrative command.
package catalog

import (
	"context"

	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// Catalog persists object, layout, device and medium records.
//
// Missing records are reported with hsmerr.ErrNotFound, duplicates with
// hsmerr.ErrExists and lock contention with hsmerr.ErrResourceBusy.
type Catalog interface {
	// InsertObject stores a new live generation. It fails if a live
	// object with the same oid exists.
	InsertObject(ctx context.Context, obj *Object) error

	// FindObject returns the live object matching oid (and uuid, version if
	// set), then falls back to deprecated generations. With an empty oid,
	// uuid is mandatory. A zero or negative version selects the latest.
	FindObject(ctx context.Context, oid, uuid string, version int) (*Object, error)

	ListObjects(ctx context.Context, q ObjectQuery) ([]Object, error)

	// DeprecateObject moves the live object oid to the deprecated
	// generations and returns it.
	DeprecateObject(ctx context.Context, oid string) (*Object, error)

	// DeleteObject deprecates the live object, or removes it along with
	// every deprecated generation of the same oid when hard is set.
	DeleteObject(ctx context.Context, oid string, hard bool) error

	// UndeleteObject restores the latest deprecated generation identified
	// by oid or by uuid.
	UndeleteObject(ctx context.Context, oid, uuid string) error

	// RenameObject renames every generation sharing the uuid of the object
	// identified by oldOID or uuid.
	RenameObject(ctx context.Context, oldOID, uuid, newOID string) error

	// CommitObject stores layout and obj as the new live generation in one
	// transaction. With replace, the live generation obj.Version-1 of the
	// same uuid is deprecated; without it, any live object with the same
	// oid fails the commit. Nothing is stored on failure.
	CommitObject(ctx context.Context, obj *Object, layout *Layout, replace bool) error

	InsertLayout(ctx context.Context, layout *Layout) error
	ListLayouts(ctx context.Context, q LayoutQuery) ([]Layout, error)

	InsertDevices(ctx context.Context, devices []Device) error
	ListDevices(ctx context.Context, family resource.Family) ([]Device, error)
	// UpdateDevices replaces existing device records in one transaction.
	UpdateDevices(ctx context.Context, devices []Device) error

	InsertMedia(ctx context.Context, media []Medium) error
	GetMedium(ctx context.Context, id resource.ID) (*Medium, error)
	ListMedia(ctx context.Context, q MediumQuery) ([]Medium, error)
	UpdateMedium(ctx context.Context, medium *Medium) error

	// Lock takes the lock of every record in ids for owner in one
	// transaction: either all of them are locked or none is. Records
	// already held by owner are left as is. With forced, locks held by
	// other owners are overridden.
	Lock(ctx context.Context, kind Kind, ids []resource.ID, owner Lock, forced bool) error

	// Unlock releases the lock of every record in ids. Records held by
	// another owner make the call fail unless forced is set. Unlocked
	// records are left as is.
	Unlock(ctx context.Context, kind Kind, ids []resource.ID, owner Lock, forced bool) error

	Close() error
}
