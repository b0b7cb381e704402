package models

import (
	"time"

	"github.com/google/uuid"
)

// Playlist is a user-owned ordered collection of scenes
type Playlist struct {
	ID        uuid.UUID      `json:"id" gorm:"type:text;primaryKey;column:id"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:text;not null;index;column:user_id"`
	Name      string         `json:"name" gorm:"type:text;not null;column:name" validate:"required,min=1,max=255"`
	Items     []PlaylistItem `json:"items,omitempty" gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time      `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// PlaylistItem is one scene entry in a playlist. Position is the 0-based
// ordering within the playlist.
type PlaylistItem struct {
	ID         uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	PlaylistID uuid.UUID `json:"playlist_id" gorm:"type:text;not null;index;column:playlist_id"`
	SceneID    string    `json:"scene_id" gorm:"type:text;not null;column:scene_id" validate:"required"`
	Position   int       `json:"position" gorm:"type:integer;not null;column:position"`
	CreatedAt  time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewPlaylist creates a new Playlist with generated UUID and timestamps
func NewPlaylist(userID uuid.UUID, name string) *Playlist {
	now := time.Now().UTC()
	return &Playlist{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPlaylistItem creates a new PlaylistItem with generated UUID
func NewPlaylistItem(playlistID uuid.UUID, sceneID string, position int) *PlaylistItem {
	return &PlaylistItem{
		ID:         uuid.New(),
		PlaylistID: playlistID,
		SceneID:    sceneID,
		Position:   position,
		CreatedAt:  time.Now().UTC(),
	}
}
