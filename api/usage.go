package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/keeptend/assistant"
	"example.com/keeptend/handlers"
)

// UsageResponse is the current month plus the stored history
type UsageResponse struct {
	Count     int         `json:"count"`
	Month     string      `json:"month"`
	Tier      string      `json:"tier"`
	Remaining int         `json:"remaining"`
	History   interface{} `json:"history"`
}

type describePhotoRequest struct {
	ImageURI string `json:"imageUri" binding:"required"`
}

func (s *Server) getUsage(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.tracker.GetCurrentUsage(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	decision, err := s.tracker.CheckQuota(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := s.repo.ListUsage(ctx, s.tracker.UserID())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, UsageResponse{
		Count:     stats.Count,
		Month:     stats.Month,
		Tier:      stats.Tier,
		Remaining: decision.Remaining,
		History:   history,
	})
}

func (s *Server) resetUsage(c *gin.Context) {
	if err := s.tracker.ResetMonthlyUsage(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// generateName answers 200 for both outcomes; a declined request carries
// decision.allowed=false
func (s *Server) generateName(c *gin.Context) {
	var traits assistant.PlantTraits
	if err := c.ShouldBindJSON(&traits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.namingHandler.GenerateName(c.Request.Context(), traits)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) describePhoto(c *gin.Context) {
	var req describePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	description, err := s.namingHandler.DescribePhoto(c.Request.Context(), req.ImageURI)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"description": description})
}

func (s *Server) applyPurchase(c *gin.Context) {
	var cmd handlers.PurchaseCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	valid, err := s.accountHandler.ApplyPurchase(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
