// Package admin administers devices and media and inspects object layouts.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"go.uber.org/zap"
)

// Handle is an open administrative connection to the engine.
type Handle interface {
	DeviceAdd(ctx context.Context, family resource.Family, names []string, keepLocked bool) error
	DeviceLock(ctx context.Context, family resource.Family, names []string, forced bool) error
	DeviceUnlock(ctx context.Context, family resource.Family, names []string, forced bool) error
	MediumAdd(ctx context.Context, family resource.Family, names []string, tags []string, keepLocked bool) error
	Format(ctx context.Context, medium resource.ID, fs resource.FSType, unlock bool) error

	// ListLayouts returns engine owned records, they are handed back with
	// FreeLayouts.
	ListLayouts(ctx context.Context, q catalog.LayoutQuery) ([]catalog.Layout, error)
	FreeLayouts(layouts []catalog.Layout)

	Fini() error
}

// Initializer opens administrative handles.
type Initializer interface {
	// Init fails when requireTransfer is set and the transfer subsystem is
	// not available.
	Init(ctx context.Context, requireTransfer bool) (Handle, error)
}

// Client issues administrative commands. Nothing is cached: every command
// is validated by the engine against the current catalog state.
type Client struct {
	handle Handle
	log    *zap.Logger
}

// Open initializes a handle and wraps it.
func Open(ctx context.Context, init Initializer, requireTransfer bool, log *zap.Logger) (*Client, error) {
	h, err := init.Init(ctx, requireTransfer)
	if err != nil {
		return nil, hsmerr.NewEngineError("admin init", "", err)
	}

	return New(h, log), nil
}

// New wraps an initialized handle.
func New(h Handle, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{handle: h, log: log}
}

// Close releases the handle.
func (c *Client) Close() error {
	return c.handle.Fini()
}

func checkResources(family resource.Family, names []string) error {
	if !family.Valid() {
		return fmt.Errorf("%w: a resource family is required", hsmerr.ErrInvalidArgument)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no %s resource given", hsmerr.ErrInvalidArgument, family)
	}
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty %s resource name", hsmerr.ErrInvalidArgument, family)
		}
	}

	return nil
}

func target(family resource.Family, names []string) string {
	return family.String() + " '" + strings.Join(names, ", ") + "'"
}

// Add registers devices. A failure on any of them fails the call.
func (c *Client) Add(ctx context.Context, family resource.Family, names []string, keepLocked bool) error {
	if err := checkResources(family, names); err != nil {
		return err
	}

	if err := c.handle.DeviceAdd(ctx, family, names, keepLocked); err != nil {
		return hsmerr.NewEngineError("device add", "", err)
	}

	c.log.Info("devices added", zap.Stringer("family", family), zap.Strings("names", names))

	return nil
}

// Lock takes the administrative lock of every named device. On failure some
// devices may already be locked, the error says so and nothing is undone.
func (c *Client) Lock(ctx context.Context, family resource.Family, names []string, forced bool) error {
	if err := checkResources(family, names); err != nil {
		return err
	}

	if err := c.handle.DeviceLock(ctx, family, names, forced); err != nil {
		return hsmerr.NewEngineError("device lock", target(family, names), err)
	}

	c.log.Info("devices locked", zap.Stringer("family", family), zap.Strings("names", names), zap.Bool("forced", forced))

	return nil
}

// Unlock releases the administrative lock of every named device.
func (c *Client) Unlock(ctx context.Context, family resource.Family, names []string, forced bool) error {
	if err := checkResources(family, names); err != nil {
		return err
	}

	if err := c.handle.DeviceUnlock(ctx, family, names, forced); err != nil {
		return hsmerr.NewEngineError("device unlock", target(family, names), err)
	}

	c.log.Info("devices unlocked", zap.Stringer("family", family), zap.Strings("names", names), zap.Bool("forced", forced))

	return nil
}

// MediumAdd registers media with optional tags.
func (c *Client) MediumAdd(ctx context.Context, family resource.Family, names, tags []string, keepLocked bool) error {
	if err := checkResources(family, names); err != nil {
		return err
	}

	if err := c.handle.MediumAdd(ctx, family, names, tags, keepLocked); err != nil {
		return hsmerr.NewEngineError("medium add", target(family, names), err)
	}

	return nil
}

// ParseFSType maps a filesystem type name, case-insensitively, to the
// family of media it applies to.
func ParseFSType(name string) (resource.Family, resource.FSType, error) {
	switch strings.ToLower(name) {
	case "ltfs":
		return resource.FamilyTape, resource.FSLTFS, nil
	case "posix":
		return resource.FamilyDir, resource.FSPosix, nil
	}

	return resource.FamilyUnspecified, 0, fmt.Errorf("%w: unknown filesystem type '%s'", hsmerr.ErrUnsupportedOperation, name)
}

// Format formats a medium with the given filesystem type and optionally
// unlocks it afterwards.
func (c *Client) Format(ctx context.Context, medium, fsType string, unlock bool) error {
	family, fs, err := ParseFSType(fsType)
	if err != nil {
		return err
	}
	if medium == "" {
		return fmt.Errorf("%w: no medium to format", hsmerr.ErrInvalidArgument)
	}

	id := resource.ID{Family: family, Name: medium}
	if err := c.handle.Format(ctx, id, fs, unlock); err != nil {
		return hsmerr.NewEngineError("medium format", "'"+medium+"'", err)
	}

	c.log.Info("medium formatted", zap.Stringer("medium", id), zap.Stringer("fs", fs), zap.Bool("unlocked", unlock))

	return nil
}
