package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// ObjectStatus is a bitmask describing how much of an object is readable.
type ObjectStatus int

const (
	StatusIncomplete ObjectStatus = 1 << iota
	StatusReadable
	StatusComplete
)

func (s ObjectStatus) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusReadable:
		return "readable"
	case StatusComplete:
		return "complete"
	default:
		return strconv.Itoa(int(s))
	}
}

// Object is one generation of a stored object. DeprecTime is set for
// generations that were overwritten or soft-deleted.
type Object struct {
	OID          string            `json:"oid"`
	UUID         string            `json:"uuid"`
	Version      int               `json:"version"`
	UserMD       map[string]string `json:"user_md"`
	Status       ObjectStatus      `json:"status"`
	Size         int64             `json:"size"`
	Grouping     string            `json:"grouping,omitempty"`
	CreationTime time.Time         `json:"creation_time"`
	AccessTime   time.Time         `json:"access_time"`
	DeprecTime   *time.Time        `json:"deprec_time,omitempty"`
}

// Deprecated reports whether o is not the live generation.
func (o *Object) Deprecated() bool {
	return o.DeprecTime != nil
}

// Extent is one contiguous placement of object data on a medium.
type Extent struct {
	UUID    string      `json:"uuid"`
	Index   int         `json:"index"`
	Size    int64       `json:"size"`
	Address string      `json:"address"`
	Medium  resource.ID `json:"medium"`
}

// Layout describes how one object generation maps onto extents.
type Layout struct {
	OID         string            `json:"oid"`
	UUID        string            `json:"uuid"`
	Version     int               `json:"version"`
	Name        string            `json:"layout_name"`
	Params      map[string]string `json:"layout_params,omitempty"`
	ExtentCount int               `json:"ext_count"`
	Extents     []Extent          `json:"extents"`
}

// Lock marks a record as owned by a process on a host. The zero value is an
// unlocked record.
type Lock struct {
	Hostname  string    `json:"hostname,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Held reports whether the lock is taken.
func (l Lock) Held() bool {
	return l.Hostname != ""
}

// Owns reports whether l is held by other's owner.
func (l Lock) Owns(other Lock) bool {
	return l.Held() && l.Hostname == other.Hostname && l.PID == other.PID
}

func (l Lock) String() string {
	if !l.Held() {
		return ""
	}

	return l.Hostname + ":" + strconv.Itoa(l.PID)
}

// ParseLock parses the "hostname:pid" form produced by Lock.String.
func ParseLock(s string) (Lock, error) {
	if s == "" {
		return Lock{}, nil
	}

	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return Lock{}, fmt.Errorf("invalid lock owner '%s'", s)
	}

	pid, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Lock{}, fmt.Errorf("invalid lock owner '%s': %w", s, err)
	}

	return Lock{Hostname: s[:i], PID: pid}, nil
}

// AdmStatus is the administrative state of a device or medium.
type AdmStatus string

const (
	AdmLocked   AdmStatus = "locked"
	AdmUnlocked AdmStatus = "unlocked"
	AdmFailed   AdmStatus = "failed"
)

// FSStatus is the filling state of a medium filesystem.
type FSStatus string

const (
	FSBlank FSStatus = "blank"
	FSEmpty FSStatus = "empty"
	FSUsed  FSStatus = "used"
	FSFull  FSStatus = "full"
)

// Device is a drive (or a directory host) able to access media.
type Device struct {
	ID        resource.ID `json:"id"`
	Host      string      `json:"host"`
	Path      string      `json:"path"`
	Model     string      `json:"model,omitempty"`
	AdmStatus AdmStatus   `json:"adm_status"`
	Lock      Lock        `json:"lock"`
}

// MediumStats accounts for the data written on a medium.
type MediumStats struct {
	NbObj       int64 `json:"nb_obj"`
	LogcSpcUsed int64 `json:"logc_spc_used"`
}

// Medium is a tape, a directory or a pool storing extents.
type Medium struct {
	ID        resource.ID     `json:"id"`
	FSType    resource.FSType `json:"fs_type"`
	FSStatus  FSStatus        `json:"fs_status"`
	AdmStatus AdmStatus       `json:"adm_status"`
	Library   string          `json:"library,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Stats     MediumStats     `json:"stats"`
	Lock      Lock            `json:"lock"`
}

// HasTags reports whether every tag is carried by the medium.
func (m *Medium) HasTags(tags []string) bool {
	for _, tag := range tags {
		found := false
		for _, own := range m.Tags {
			if own == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
