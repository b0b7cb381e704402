package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwaldron/scenecast/internal/models"
)

// PathMappingRepository handles database operations for path mappings
type PathMappingRepository struct {
	db *DB
}

// NewPathMappingRepository creates a new path mapping repository
func NewPathMappingRepository(db *DB) *PathMappingRepository {
	return &PathMappingRepository{db: db}
}

// Create inserts a new path mapping
func (r *PathMappingRepository) Create(ctx context.Context, mapping *models.PathMapping) error {
	if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
		return fmt.Errorf("failed to create path mapping: %w", MapGormError(err))
	}
	return nil
}

// List retrieves all path mappings
func (r *PathMappingRepository) List(ctx context.Context) ([]models.PathMapping, error) {
	var mappings []models.PathMapping
	if err := r.db.WithContext(ctx).Order("external_prefix ASC").Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to list path mappings: %w", MapGormError(err))
	}
	return mappings, nil
}

// Update replaces the prefixes of an existing mapping
func (r *PathMappingRepository) Update(ctx context.Context, id uuid.UUID, externalPrefix, localPrefix string) (*models.PathMapping, error) {
	var mapping models.PathMapping
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&mapping).Error; err != nil {
		return nil, MapGormError(err)
	}

	mapping.ExternalPrefix = externalPrefix
	mapping.LocalPrefix = localPrefix
	mapping.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(&mapping).Error; err != nil {
		return nil, fmt.Errorf("failed to update path mapping: %w", MapGormError(err))
	}
	return &mapping, nil
}

// Delete removes a path mapping by ID
func (r *PathMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PathMapping{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete path mapping: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
