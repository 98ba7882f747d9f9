package model

import "time"

// User is the authenticated principal that owns sessions and files. The
// surrounding application manages accounts; this core only resolves an API
// token to an owner id.
type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	APIToken  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
