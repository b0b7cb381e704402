package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/models"
)

// RatingRepository handles database operations for scene ratings
type RatingRepository struct {
	db *DB
}

// NewRatingRepository creates a new rating repository
func NewRatingRepository(db *DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Upsert creates or replaces a user's rating for a scene
func (r *RatingRepository) Upsert(ctx context.Context, userID uuid.UUID, sceneID string, stars int) (*models.Rating, error) {
	if !models.IsValidStars(stars) {
		return nil, fmt.Errorf("%w: stars must be between %d and %d", ErrInvalidInput, models.RatingMin, models.RatingMax)
	}

	var existing models.Rating
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scene_id = ?", userID, sceneID).
		First(&existing).Error

	if err != nil {
		if !errors.Is(MapGormError(err), ErrNotFound) {
			return nil, MapGormError(err)
		}
		rating := models.NewRating(userID, sceneID, stars)
		if err := r.db.WithContext(ctx).Create(rating).Error; err != nil {
			return nil, fmt.Errorf("failed to create rating: %w", MapGormError(err))
		}
		return rating, nil
	}

	existing.Stars = stars
	existing.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update rating: %w", MapGormError(err))
	}
	return &existing, nil
}

// GetForScene retrieves a user's rating for one scene
func (r *RatingRepository) GetForScene(ctx context.Context, userID uuid.UUID, sceneID string) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scene_id = ?", userID, sceneID).
		First(&rating).Error
	if err != nil {
		return nil, MapGormError(err)
	}
	return &rating, nil
}

// ListForUser retrieves all of a user's ratings, newest first
func (r *RatingRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", MapGormError(err))
	}
	return ratings, nil
}

// Delete removes a user's rating for a scene
func (r *RatingRepository) Delete(ctx context.Context, userID uuid.UUID, sceneID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND scene_id = ?", userID, sceneID).
		Delete(&models.Rating{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete rating: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
