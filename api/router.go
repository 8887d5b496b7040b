package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frost-node/api/handlers"
)

// SetupRouter wires the API routes to the injected handler set.
func SetupRouter(h *handlers.Handler) *gin.Engine {
	router := gin.Default()

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	router.POST("/keys", h.GenerateKey)
	router.GET("/keys", h.GetKeys)
	router.GET("/keys/:id/versions", h.GetKeyVersions)
	router.POST("/keys/:id/rotate", h.RotateKey)
	router.DELETE("/keys/:id", h.RevokeKey)

	router.POST("/keys/:id/sign", h.Sign)
	router.POST("/keys/:id/threshold-sign", h.ThresholdSign)
	router.GET("/sessions/:id", h.GetSession)

	router.POST("/parties", h.RegisterParty)
	router.GET("/parties", h.GetParties)
	router.DELETE("/parties/:id", h.DeactivateParty)

	return router
}
