package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KeyVersion records one generation of a key's shares. It belongs to a
// KeyRecord. Exactly one version per key is active at any time.
type KeyVersion struct {
	gorm.Model
	KeyRecordID uuid.UUID  `gorm:"type:uuid;index" json:"-"`
	Version     int        `json:"version"`
	Status      string     `json:"status"` // active, rotated, revoked
	RotatedAt   *time.Time `json:"rotatedAt,omitempty"`
}
