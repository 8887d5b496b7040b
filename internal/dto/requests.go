// Package dto defines the API request and response payloads.
package dto

// GenerateKeyRequest asks the node to run a distributed key generation.
type GenerateKeyRequest struct {
	Threshold    int `json:"threshold" binding:"required"`
	TotalParties int `json:"totalParties" binding:"required"`
}

// SignRequest asks for a signature at the key's configured threshold.
type SignRequest struct {
	Message string `json:"message" binding:"required"`
}

// ThresholdSignRequest asks for a signature with a caller-chosen quorum size.
type ThresholdSignRequest struct {
	Message   string `json:"message" binding:"required"`
	Threshold int    `json:"threshold" binding:"required"`
}

// RegisterPartyRequest adds a signing party to the registry.
type RegisterPartyRequest struct {
	ID        string `json:"id" binding:"required"`
	Endpoint  string `json:"endpoint" binding:"required"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
	Stake     int64  `json:"stake"`
}
