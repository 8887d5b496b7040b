package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"frost-node/internal/curve"
	"frost-node/internal/dto"
	"frost-node/internal/frost"
	"frost-node/internal/signing"
)

// Sign produces a signature at the key's configured threshold, blocking
// until the session reaches a terminal state.
func (h *Handler) Sign(c *gin.Context) {
	var req dto.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, info, err := h.coordinator.Sign(c.Param("id"), []byte(req.Message))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signatureResponse(sig, info))
}

// ThresholdSign produces a signature with a caller-chosen quorum size.
func (h *Handler) ThresholdSign(c *gin.Context) {
	var req dto.ThresholdSignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, info, err := h.coordinator.ThresholdSign(c.Param("id"), []byte(req.Message), req.Threshold)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signatureResponse(sig, info))
}

func signatureResponse(sig *frost.Signature, info *signing.Info) dto.SignatureResponse {
	return dto.SignatureResponse{
		Signature:        sig.Hex(),
		R:                hex.EncodeToString(curve.AffineX(sig.R)),
		S:                hex.EncodeToString(curve.ScalarBytes(sig.S)),
		RecoveryID:       sig.RecoveryID,
		SessionID:        info.SessionID,
		ParticipantCount: len(info.Participants),
		Threshold:        info.Threshold,
	}
}
