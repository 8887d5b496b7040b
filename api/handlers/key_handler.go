package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frost-node/internal/dto"
	"frost-node/internal/keys"
)

// GenerateKey runs a distributed key generation across the active parties.
func (h *Handler) GenerateKey(c *gin.Context) {
	var req dto.GenerateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.keys.GenerateKey(req.Threshold, req.TotalParties)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, keyResponse(snap))
}

// GetKeys lists all keys.
func (h *Handler) GetKeys(c *gin.Context) {
	snaps := h.keys.List()
	out := make([]dto.KeyResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, keyResponse(snap))
	}
	c.JSON(http.StatusOK, out)
}

// GetKeyVersions returns the version history metadata for one key.
func (h *Handler) GetKeyVersions(c *gin.Context) {
	versions, err := h.keys.GetVersions(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	out := make([]dto.KeyVersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, dto.KeyVersionResponse{
			Version:   v.Version,
			Status:    string(v.Status),
			CreatedAt: v.CreatedAt,
			RotatedAt: v.RotatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// RotateKey re-shares the key, preserving its public key and address.
func (h *Handler) RotateKey(c *gin.Context) {
	snap, err := h.keys.RotateKey(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, keyResponse(snap))
}

// RevokeKey revokes the key and zeroizes its share material.
func (h *Handler) RevokeKey(c *gin.Context) {
	if err := h.keys.RevokeKey(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func keyResponse(snap *keys.Snapshot) dto.KeyResponse {
	return dto.KeyResponse{
		KeyID:          snap.KeyID,
		GroupPublicKey: snap.PublicKeyHex(),
		GroupAddress:   snap.GroupAddress,
		Threshold:      snap.Threshold,
		TotalParties:   snap.TotalParties,
		Revoked:        snap.Revoked,
	}
}
