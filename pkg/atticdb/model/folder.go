package model

import "time"

// Folder is owned by the surrounding application's directory tree. The upload
// core only ever checks that a target folder exists and belongs to the owner.
type Folder struct {
	ID        int       `json:"id"`
	OwnerID   int       `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Folder) TableName() string {
	return "folders"
}
