package models

import (
	"gorm.io/gorm"
)

// Party mirrors a registry entry for persistence. Deactivated parties are
// kept so historical signature shares remain attributable.
type Party struct {
	gorm.Model
	PartyID   string `gorm:"type:varchar(64);uniqueIndex" json:"partyId"`
	Index     uint32 `gorm:"column:party_index" json:"index"`
	Endpoint  string `json:"endpoint"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
	Stake     int64  `json:"stake"`
	Active    bool   `json:"active"`
}
