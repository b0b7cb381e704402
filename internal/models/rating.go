package models

import (
	"time"

	"github.com/google/uuid"
)

// Rating stars bounds
const (
	RatingMin = 1
	RatingMax = 5
)

// Rating is one user's star rating for a scene. A user has at most one
// rating per scene; re-rating replaces it.
type Rating struct {
	ID        uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:text;not null;uniqueIndex:idx_ratings_user_scene;column:user_id"`
	SceneID   string    `json:"scene_id" gorm:"type:text;not null;uniqueIndex:idx_ratings_user_scene;column:scene_id" validate:"required"`
	Stars     int       `json:"stars" gorm:"type:integer;not null;column:stars" validate:"required,min=1,max=5"`
	CreatedAt time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewRating creates a new Rating with generated UUID and timestamps
func NewRating(userID uuid.UUID, sceneID string, stars int) *Rating {
	now := time.Now().UTC()
	return &Rating{
		ID:        uuid.New(),
		UserID:    userID,
		SceneID:   sceneID,
		Stars:     stars,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsValidStars reports whether stars is inside the allowed range
func IsValidStars(stars int) bool {
	return stars >= RatingMin && stars <= RatingMax
}
