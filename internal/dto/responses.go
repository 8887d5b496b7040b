package dto

import "time"

// KeyResponse is the public view of a generated key.
type KeyResponse struct {
	KeyID          string `json:"keyId"`
	GroupPublicKey string `json:"groupPublicKey"`
	GroupAddress   string `json:"groupAddress"`
	Threshold      int    `json:"threshold"`
	TotalParties   int    `json:"totalParties"`
	Revoked        bool   `json:"revoked,omitempty"`
}

// KeyVersionResponse is one entry of a key's version history.
type KeyVersionResponse struct {
	Version   int        `json:"version"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	RotatedAt *time.Time `json:"rotatedAt,omitempty"`
}

// SignatureResponse carries a verified aggregated signature.
type SignatureResponse struct {
	Signature        string `json:"signature"` // hex r||s||v
	R                string `json:"r"`
	S                string `json:"s"`
	RecoveryID       byte   `json:"recoveryId"`
	SessionID        string `json:"sessionId"`
	ParticipantCount int    `json:"participantCount"`
	Threshold        int    `json:"threshold"`
}

// SessionResponse is the polling view of a signing session.
type SessionResponse struct {
	SessionID            string    `json:"sessionId"`
	KeyID                string    `json:"keyId"`
	MessageHash          string    `json:"messageHash"`
	Status               string    `json:"status"`
	Threshold            int       `json:"threshold"`
	Participants         []uint32  `json:"participants"`
	CollectedCommitments int       `json:"collectedCommitments"`
	CollectedShares      int       `json:"collectedShares"`
	ExpiresAt            time.Time `json:"expiresAt"`
	Failure              string    `json:"failure,omitempty"`
}

// PartyResponse is the public view of a registered party.
type PartyResponse struct {
	ID           string    `json:"id"`
	Index        uint32    `json:"index"`
	Endpoint     string    `json:"endpoint"`
	PublicKey    string    `json:"publicKey,omitempty"`
	Address      string    `json:"address,omitempty"`
	Stake        int64     `json:"stake"`
	RegisteredAt time.Time `json:"registeredAt"`
	Active       bool      `json:"active"`
}
