package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frost-node/internal/dto"
)

// GetSession is the polling endpoint for signing-session state.
func (h *Handler) GetSession(c *gin.Context) {
	info, err := h.coordinator.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SessionResponse{
		SessionID:            info.SessionID,
		KeyID:                info.KeyID,
		MessageHash:          info.MessageHash,
		Status:               string(info.Status),
		Threshold:            info.Threshold,
		Participants:         info.Participants,
		CollectedCommitments: info.Commitments,
		CollectedShares:      info.Shares,
		ExpiresAt:            info.ExpiresAt,
		Failure:              info.Failure,
	})
}
