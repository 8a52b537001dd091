package model

// UndeleteRequest restores objects either by oid or by uuid, not both.
type UndeleteRequest struct {
	OIDs  []string `json:"oids" validate:"dive,required"`
	UUIDs []string `json:"uuids" validate:"dive,required"`
}

// RenameRequest renames the object addressed by OldOID or UUID.
type RenameRequest struct {
	OldOID string `json:"oldOid"`
	UUID   string `json:"uuid"`
	NewOID string `json:"newOid" validate:"required"`
}

// ResourcesAddRequest registers devices or media of the family in the path.
type ResourcesAddRequest struct {
	Names []string `json:"names" validate:"required,min=1,dive,required"`
	// Tags apply to media only.
	Tags       []string `json:"tags" validate:"dive,required"`
	KeepLocked bool     `json:"keepLocked"`
}

// DevicesLockRequest changes the administrative status of devices.
type DevicesLockRequest struct {
	Names  []string `json:"names" validate:"required,min=1,dive,required"`
	Forced bool     `json:"forced"`
}

// FormatRequest formats media, the filesystem type picks their family.
type FormatRequest struct {
	Names  []string `json:"names" validate:"required,min=1,dive,required"`
	FSType string   `json:"fsType" validate:"required"`
	Unlock bool     `json:"unlock"`
}
