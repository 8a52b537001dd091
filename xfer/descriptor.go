// Package xfer assembles transfer descriptors into per-operation batches and
// dispatches them to a transfer engine.
package xfer

import (
	"fmt"
	"os"
	"strconv"

	"github.com/nspcc-dev/hsm-http-gw/attrs"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// Op is the kind of a transfer.
type Op int

const (
	OpPut Op = iota
	OpGet
	OpGetMD
	OpDelete
	OpUndelete
)

var opNames = [...]string{"PUT", "GET", "GETMD", "DELETE", "UNDELETE"}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}

	return "op(" + strconv.Itoa(int(o)) + ")"
}

// batched reports whether o is queued in a Session instead of being issued
// immediately.
func (o Op) batched() bool {
	return o == OpPut || o == OpGet || o == OpGetMD
}

// Flags alter a transfer.
type Flags uint

const (
	// FlagReplace truncates an existing GET destination or overwrites an
	// existing object on PUT.
	FlagReplace Flags = 1 << iota
	// FlagBestHost makes the engine refuse a GET that another host serves
	// better and report that host.
	FlagBestHost
	// FlagHardDelete removes objects instead of deprecating them.
	FlagHardDelete
)

// Params is the operation specific part of a descriptor, either *PutParams
// or *GetParams.
type Params interface {
	op() Op
}

// PutParams tunes where and how a PUT is written.
type PutParams struct {
	Family   resource.Family
	Grouping string
	Library  string
	Layout   string
	// LayoutParams are passed to the layout module as is.
	LayoutParams attrs.Set
	Tags         []string
	// Alias selects a preconfigured (family, layout, tags) profile.
	Alias     string
	Overwrite bool

	// Size is the source size captured when the file is opened.
	Size int64
}

func (*PutParams) op() Op { return OpPut }

// GetParams carries GET results besides the status.
type GetParams struct {
	// NodeName is set by the engine when another host is better located
	// to serve the object.
	NodeName string
	// Size is the object size reported by GET and GETMD.
	Size int64
}

func (*GetParams) op() Op { return OpGet }

// Descriptor is one transfer against one object identity.
type Descriptor struct {
	OID  string
	UUID string
	// Version 0 or negative addresses the latest generation.
	Version int
	Op      Op
	Path    string
	Attrs   attrs.Set
	Flags   Flags
	Params  Params

	// File is open between the start of Execute and Release.
	File *os.File

	// Result is the outcome reported for this descriptor, nil on success.
	Result error

	// created is set once a GET destination is opened, including a
	// truncated replace target, and marks it for removal on rollback.
	created bool
}

// FD returns the file descriptor of the attached file or -1.
func (d *Descriptor) FD() int {
	if d.File == nil {
		return -1
	}

	return int(d.File.Fd())
}

// Put returns the PUT parameters, nil for other operations.
func (d *Descriptor) Put() *PutParams {
	p, _ := d.Params.(*PutParams)
	return p
}

// Get returns the GET parameters, nil for other operations.
func (d *Descriptor) Get() *GetParams {
	p, _ := d.Params.(*GetParams)
	return p
}

// ID names the object for messages.
func (d *Descriptor) ID() string {
	if d.OID != "" {
		return d.OID
	}

	return d.UUID
}

func (d *Descriptor) validate() error {
	if d.Params != nil && d.Params.op() != d.Op && !(d.Op == OpGetMD && d.Params.op() == OpGet) {
		return fmt.Errorf("%w: %T given for %s", hsmerr.ErrInvalidArgument, d.Params, d.Op)
	}

	switch d.Op {
	case OpPut:
		if d.OID == "" {
			return fmt.Errorf("%w: PUT needs an object id", hsmerr.ErrInvalidArgument)
		}
		if d.Path == "" {
			return fmt.Errorf("%w: PUT of '%s' needs a source path", hsmerr.ErrInvalidArgument, d.OID)
		}
		if p := d.Put(); p.Family != resource.FamilyUnspecified && !p.Family.Valid() {
			return fmt.Errorf("%w: unknown family %d for '%s'", hsmerr.ErrInvalidArgument, int(p.Family), d.OID)
		}
	case OpGet:
		if d.Path == "" {
			return fmt.Errorf("%w: GET of '%s' needs a destination path", hsmerr.ErrInvalidArgument, d.ID())
		}
		fallthrough
	case OpGetMD, OpDelete, OpUndelete:
		if d.OID == "" && d.UUID == "" {
			return fmt.Errorf("%w: %s needs an object id or uuid", hsmerr.ErrInvalidArgument, d.Op)
		}
	default:
		return fmt.Errorf("%w: unknown operation %s", hsmerr.ErrInvalidArgument, d.Op)
	}

	return nil
}

// open attaches the local file according to the operation.
func (d *Descriptor) open() error {
	var err error

	switch d.Op {
	case OpPut:
		d.File, err = openSource(d.Path)
		if err != nil {
			return err
		}

		var st os.FileInfo
		if st, err = d.File.Stat(); err != nil {
			return err
		}
		d.Put().Size = st.Size()
	case OpGet:
		flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
		if d.Flags&FlagReplace != 0 {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}

		d.File, err = os.OpenFile(d.Path, flags, 0o666)
		if err != nil {
			return err
		}
		d.created = true
	}

	return nil
}

// Release closes the file and drops the attributes. It is safe to call more
// than once.
func (d *Descriptor) Release() error {
	d.Attrs.Clear()

	if d.File == nil {
		return nil
	}

	err := d.File.Close()
	d.File = nil

	return err
}

// removeCreated deletes the destination file this descriptor opened.
func (d *Descriptor) removeCreated() error {
	if !d.created {
		return nil
	}

	d.created = false
	if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
