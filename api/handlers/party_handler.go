package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frost-node/internal/dto"
	"frost-node/internal/party"
)

// RegisterParty adds a signing party to the registry.
func (h *Handler) RegisterParty(c *gin.Context) {
	var req dto.RegisterPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.registry.Register(req.ID, req.Endpoint, req.PublicKey, req.Address, req.Stake)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, partyResponse(p))
}

// DeactivateParty marks a party inactive; its record and index are kept.
func (h *Handler) DeactivateParty(c *gin.Context) {
	if err := h.registry.Deactivate(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetParties lists all registered parties.
func (h *Handler) GetParties(c *gin.Context) {
	parties := h.registry.ListAll()
	out := make([]dto.PartyResponse, 0, len(parties))
	for _, p := range parties {
		out = append(out, partyResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func partyResponse(p party.Party) dto.PartyResponse {
	return dto.PartyResponse{
		ID:           p.ID,
		Index:        p.Index,
		Endpoint:     p.Endpoint,
		PublicKey:    p.PublicKey,
		Address:      p.Address,
		Stake:        p.Stake,
		RegisteredAt: p.RegisteredAt,
		Active:       p.Active,
	}
}
