package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an API consumer. The APIKey authenticates requests on
// the protected routes.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	Username  string    `json:"username" gorm:"type:text;not null;uniqueIndex;column:username" validate:"required,min=1,max=255"`
	APIKey    string    `json:"-" gorm:"type:text;not null;uniqueIndex;column:api_key"`
	IsAdmin   bool      `json:"is_admin" gorm:"type:integer;not null;default:0;column:is_admin"`
	CreatedAt time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewUser creates a new User with generated UUID, API key and timestamps
func NewUser(username string, isAdmin bool) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Username:  username,
		APIKey:    uuid.NewString(),
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
