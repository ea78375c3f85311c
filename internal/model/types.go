package model

import "time"

type EventKind uint8

const (
	KindCreate EventKind = iota
	KindModify
	KindRemove
	KindRename
)

func (k EventKind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindRemove:
		return "remove"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeRecord is one filesystem change as captured at ingestion time.
// Device is the id of the filesystem the path lived on when the event
// was observed; the path may be gone by the time the record is committed.
type ChangeRecord struct {
	Path   string
	Kind   EventKind
	Device uint64
	At     time.Time
}

// MountInfo describes the filesystem a watch root lives on.
type MountInfo struct {
	Root       string `json:"root,omitempty"`
	Device     uint64 `json:"device"`
	MountPoint string `json:"mount_point"`
	FSType     string `json:"fstype"`
	Source     string `json:"source,omitempty"`
}
