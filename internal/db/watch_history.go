package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/models"
)

// WatchHistoryRepository handles database operations for watch history
type WatchHistoryRepository struct {
	db *DB
}

// NewWatchHistoryRepository creates a new watch history repository
func NewWatchHistoryRepository(db *DB) *WatchHistoryRepository {
	return &WatchHistoryRepository{db: db}
}

// Upsert records the latest playback position for a user and scene
func (r *WatchHistoryRepository) Upsert(ctx context.Context, userID uuid.UUID, sceneID string, positionSec float64, quality string) (*models.WatchHistory, error) {
	var existing models.WatchHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scene_id = ?", userID, sceneID).
		First(&existing).Error

	if err != nil {
		if !errors.Is(MapGormError(err), ErrNotFound) {
			return nil, MapGormError(err)
		}
		entry := models.NewWatchHistory(userID, sceneID, positionSec, quality)
		if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
			return nil, fmt.Errorf("failed to create watch history: %w", MapGormError(err))
		}
		return entry, nil
	}

	existing.PositionSec = positionSec
	existing.Quality = quality
	existing.WatchedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update watch history: %w", MapGormError(err))
	}
	return &existing, nil
}

// GetForScene retrieves a user's position for one scene
func (r *WatchHistoryRepository) GetForScene(ctx context.Context, userID uuid.UUID, sceneID string) (*models.WatchHistory, error) {
	var entry models.WatchHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scene_id = ?", userID, sceneID).
		First(&entry).Error
	if err != nil {
		return nil, MapGormError(err)
	}
	return &entry, nil
}

// ListForUser retrieves a user's history, most recently watched first
func (r *WatchHistoryRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WatchHistory, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("watched_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.WatchHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list watch history: %w", MapGormError(err))
	}
	return entries, nil
}
