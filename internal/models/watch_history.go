package models

import (
	"time"

	"github.com/google/uuid"
)

// WatchHistory records a user's last playback position for a scene so a
// client can resume where it left off.
type WatchHistory struct {
	ID          uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:text;not null;uniqueIndex:idx_history_user_scene;column:user_id"`
	SceneID     string    `json:"scene_id" gorm:"type:text;not null;uniqueIndex:idx_history_user_scene;column:scene_id" validate:"required"`
	PositionSec float64   `json:"position_sec" gorm:"type:real;not null;default:0;column:position_sec"`
	Quality     string    `json:"quality" gorm:"type:text;not null;default:'';column:quality"`
	WatchedAt   time.Time `json:"watched_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:watched_at"`
}

// NewWatchHistory creates a new WatchHistory entry with generated UUID
func NewWatchHistory(userID uuid.UUID, sceneID string, positionSec float64, quality string) *WatchHistory {
	return &WatchHistory{
		ID:          uuid.New(),
		UserID:      userID,
		SceneID:     sceneID,
		PositionSec: positionSec,
		Quality:     quality,
		WatchedAt:   time.Now().UTC(),
	}
}
