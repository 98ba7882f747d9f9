package model

import (
	"path/filepath"
	"strings"
	"time"
)

// FileVersion is one immutable payload in a logical file's version chain.
// Rows are write-once; the only exception is the in-place overwrite performed
// for files with versioning disabled. Two versions may share a StorageUUID
// when their content hashes match, so the payload is stored once.
type FileVersion struct {
	ID            int       `json:"id"`
	FileID        int       `json:"file_id"`
	VersionNumber int       `json:"version_number"`
	StorageUUID   string    `json:"storage_uuid"`
	Size          int64     `json:"size"`
	Checksum      string    `json:"checksum"`
	Note          string    `json:"note"`
	CreatedByID   int       `json:"created_by_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (FileVersion) TableName() string {
	return "file_versions"
}

// ToStoragePath returns the on-disk location for this version's payload under
// root. Payloads are sharded by the second uuid segment to keep directory
// fan-out bounded.
func (v FileVersion) ToStoragePath(root string) string {
	return StoragePathForUUID(root, v.StorageUUID)
}

func StoragePathForUUID(root, storageUUID string) string {
	uuidParts := strings.Split(storageUUID, "-")
	return filepath.Join(root, uuidParts[1][0:2], uuidParts[1][2:4], storageUUID)
}
