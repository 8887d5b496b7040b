package models

import (
	"github.com/google/uuid"
)

// KeyRecord is the persisted metadata for one threshold key: public key,
// derived address, quorum parameters, and version history. Share material is
// never written to storage; it lives only inside the owning party's engine.
type KeyRecord struct {
	KeyID          uuid.UUID    `gorm:"type:uuid;primary_key" json:"keyId"`
	GroupPublicKey string       `gorm:"type:varchar(200);uniqueIndex" json:"groupPublicKey"`
	GroupAddress   string       `gorm:"type:varchar(64);index" json:"groupAddress"`
	Threshold      int          `json:"threshold"`
	TotalParties   int          `json:"totalParties"`
	Participants   string       `json:"participants"` // comma-separated party indices
	Versions       []KeyVersion `gorm:"foreignKey:KeyRecordID;references:KeyID" json:"versions"`
}
