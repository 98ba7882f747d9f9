package model

import "time"

// File is a logical file. Its content lives in the version chain; the fields
// here mirror whatever version is current. CurrentVersion only ever advances,
// except when versioning is disabled, in which case the single current
// version is overwritten in place.
type File struct {
	ID                int       `json:"id"`
	UUID              string    `json:"uuid"`
	Name              string    `json:"name" gorm:"uniqueIndex:idx_files_location"`
	OwnerID           int       `json:"owner_id" gorm:"uniqueIndex:idx_files_location"`
	FolderID          *int      `json:"folder_id" gorm:"uniqueIndex:idx_files_location"`
	MimeType          string    `json:"mime_type"`
	Size              int64     `json:"size"`
	Checksum          string    `json:"checksum"`
	CurrentVersion    int       `json:"current_version"`
	VersioningEnabled bool      `json:"versioning_enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (File) TableName() string {
	return "files"
}
