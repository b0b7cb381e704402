// Package models defines the persisted entities
package models

import (
	"time"

	"github.com/google/uuid"
)

// PathMapping rewrites a metadata-service path prefix to a local one.
// The streaming layer loads the full table into memory at startup and on
// change.
type PathMapping struct {
	ID             uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	ExternalPrefix string    `json:"external_prefix" gorm:"type:text;not null;uniqueIndex;column:external_prefix" validate:"required"`
	LocalPrefix    string    `json:"local_prefix" gorm:"type:text;not null;column:local_prefix" validate:"required"`
	CreatedAt      time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewPathMapping creates a new PathMapping with generated UUID and timestamps
func NewPathMapping(externalPrefix, localPrefix string) *PathMapping {
	now := time.Now().UTC()
	return &PathMapping{
		ID:             uuid.New(),
		ExternalPrefix: externalPrefix,
		LocalPrefix:    localPrefix,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
