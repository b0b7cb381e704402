package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cwaldron/scenecast/internal/models"
)

// PlaylistRepository handles database operations for playlists and their
// items
type PlaylistRepository struct {
	db *DB
}

// NewPlaylistRepository creates a new playlist repository
func NewPlaylistRepository(db *DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist
func (r *PlaylistRepository) Create(ctx context.Context, playlist *models.Playlist) error {
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", MapGormError(err))
	}
	return nil
}

// GetByID retrieves a playlist with its items in position order
func (r *PlaylistRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&playlist).Error
	if err != nil {
		return nil, MapGormError(err)
	}
	return &playlist, nil
}

// ListForUser retrieves a user's playlists without items, newest first
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", MapGormError(err))
	}
	return playlists, nil
}

// AddItem appends a scene to the end of a playlist
func (r *PlaylistRepository) AddItem(ctx context.Context, playlistID uuid.UUID, sceneID string) (*models.PlaylistItem, error) {
	var item *models.PlaylistItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlist models.Playlist
		if err := tx.Where("id = ?", playlistID).First(&playlist).Error; err != nil {
			return MapGormError(err)
		}

		var maxPos *int
		if err := tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ?", playlistID).
			Select("MAX(position)").
			Scan(&maxPos).Error; err != nil {
			return MapGormError(err)
		}

		position := 0
		if maxPos != nil {
			position = *maxPos + 1
		}

		item = models.NewPlaylistItem(playlistID, sceneID, position)
		if err := tx.Create(item).Error; err != nil {
			return MapGormError(err)
		}

		return tx.Model(&models.Playlist{}).
			Where("id = ?", playlistID).
			Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add playlist item: %w", err)
	}

	return item, nil
}

// RemoveItem deletes an item and compacts positions above it
func (r *PlaylistRepository) RemoveItem(ctx context.Context, playlistID, itemID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.PlaylistItem
		if err := tx.Where("id = ? AND playlist_id = ?", itemID, playlistID).First(&item).Error; err != nil {
			return MapGormError(err)
		}

		if err := tx.Delete(&item).Error; err != nil {
			return MapGormError(err)
		}

		return tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ? AND position > ?", playlistID, item.Position).
			Update("position", gorm.Expr("position - 1")).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove playlist item: %w", err)
	}
	return nil
}

// Delete removes a playlist; its items cascade
func (r *PlaylistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Playlist{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete playlist: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
