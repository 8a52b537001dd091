package model

import (
	"time"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
)

// ObjectInfo describes one object generation.
type ObjectInfo struct {
	OID          string            `json:"oid"`
	UUID         string            `json:"uuid"`
	Version      int               `json:"version"`
	Status       string            `json:"status"`
	Size         int64             `json:"size"`
	Grouping     string            `json:"grouping,omitempty"`
	UserMD       map[string]string `json:"userMd"`
	CreationTime time.Time         `json:"creationTime"`
	DeprecTime   *time.Time        `json:"deprecTime,omitempty"`
}

// ExtentInfo describes one placement of object data.
type ExtentInfo struct {
	Index   int    `json:"index"`
	Size    int64  `json:"size"`
	Address string `json:"address"`
	Family  string `json:"family"`
	Medium  string `json:"medium"`
}

// LayoutInfo describes how an object generation maps onto media.
type LayoutInfo struct {
	OID     string            `json:"oid"`
	UUID    string            `json:"uuid"`
	Version int               `json:"version"`
	Layout  string            `json:"layout"`
	Params  map[string]string `json:"params,omitempty"`
	Extents []ExtentInfo      `json:"extents"`
}

// LocateResponse names the host to access an object from.
type LocateResponse struct {
	Hostname string `json:"hostname"`
	NewLocks int    `json:"newLocks"`
}

// NewObjectInfo converts a catalog record.
func NewObjectInfo(o *catalog.Object) ObjectInfo {
	return ObjectInfo{
		OID:          o.OID,
		UUID:         o.UUID,
		Version:      o.Version,
		Status:       o.Status.String(),
		Size:         o.Size,
		Grouping:     o.Grouping,
		UserMD:       o.UserMD,
		CreationTime: o.CreationTime,
		DeprecTime:   o.DeprecTime,
	}
}

// NewLayoutInfo converts a catalog record.
func NewLayoutInfo(l *catalog.Layout) LayoutInfo {
	info := LayoutInfo{
		OID:     l.OID,
		UUID:    l.UUID,
		Version: l.Version,
		Layout:  l.Name,
		Params:  l.Params,
		Extents: make([]ExtentInfo, 0, len(l.Extents)),
	}

	for _, ext := range l.Extents {
		info.Extents = append(info.Extents, ExtentInfo{
			Index:   ext.Index,
			Size:    ext.Size,
			Address: ext.Address,
			Family:  ext.Medium.Family.String(),
			Medium:  ext.Medium.Name,
		})
	}

	return info
}
