package checkpoint

import (
	"time"
)

// ObjectStatus is the terminal outcome of one object in a migration run
type ObjectStatus string

const (
	StatusCompleted ObjectStatus = "completed"
	StatusFailed    ObjectStatus = "failed"
)

// ObjectRecord is the ledger entry for one migrated (or failed) object.
// The ledger is a reporting aid: the authoritative resume decision is the
// destination listing, not this record.
type ObjectRecord struct {
	SrcBucket string       `json:"src_bucket"`
	DstBucket string       `json:"dst_bucket"`
	Key       string       `json:"key"`
	Size      int64        `json:"size"`
	Status    ObjectStatus `json:"status"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store defines the interface for ledger persistence
type Store interface {
	GetObject(srcBucket, key string) (*ObjectRecord, error)
	SaveObject(record *ObjectRecord) error
	ListFailed() ([]*ObjectRecord, error)

	Close() error
}
