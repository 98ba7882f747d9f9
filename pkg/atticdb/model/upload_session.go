package model

import (
	"path/filepath"
	"time"
)

// UploadSession is one resumable upload in progress. ReceivedOffset is the
// single source of truth for how many bytes have been durably appended; it
// never decreases and never exceeds TotalSize.
type UploadSession struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	TotalSize      int64     `json:"total_size"`
	ReceivedOffset int64     `json:"received_offset"`
	FolderID       *int      `json:"folder_id"`
	OwnerID        int       `json:"owner_id"`
	IsComplete     bool      `json:"is_complete"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// TempPath is where appended bytes accumulate until the session finalizes.
func (s UploadSession) TempPath(root string) string {
	return filepath.Join(root, "__uploads", s.ID)
}

func (s UploadSession) Remaining() int64 {
	return s.TotalSize - s.ReceivedOffset
}

func (s UploadSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
