package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/wearly/wearly/internal/generation/domain"
)

type generationRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	GarmentID string `json:"garment_id"`
}

// CreateGeneration runs one styling generation. A spent quota is a normal
// user-facing outcome, not an error status.
func (s *Server) CreateGeneration(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.generationSvc.Generate(c.Request.Context(), generationdomain.GenerateRequest{
		UserID:    user.ID,
		Prompt:    req.Prompt,
		GarmentID: req.GarmentID,
	})
	if err != nil {
		if errors.Is(err, generationdomain.ErrLimitReached) {
			c.JSON(http.StatusOK, gin.H{
				"ok":      false,
				"reason":  "limit_reached",
				"message": "You have used all your generations for this month. Upgrade to continue styling.",
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"look":      result.Look,
		"tier":      result.Tier,
		"remaining": result.Remaining,
	})
}
