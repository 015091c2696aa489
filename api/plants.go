package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/keeptend/handlers"
	"example.com/keeptend/utils"
	"example.com/keeptend/views"
)

// listPlants returns the chat list
func (s *Server) listPlants(c *gin.Context) {
	rows, err := views.Get(c.Request.Context(), s.live, views.PlantsWithLastMessage())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// getPlant returns a plant, soft-deleted ones included
func (s *Server) getPlant(c *gin.Context) {
	plant, err := s.repo.FindPlant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plant)
}

func (s *Server) createPlant(c *gin.Context) {
	var cmd handlers.CreatePlantCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateStruct(cmd); err != nil {
		writeError(c, err)
		return
	}

	plant, err := s.plantHandler.Create(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plant)
}

func (s *Server) updatePlant(c *gin.Context) {
	var cmd handlers.UpdatePlantCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateStruct(cmd); err != nil {
		writeError(c, err)
		return
	}
	cmd.ID = c.Param("id")

	plant, err := s.plantHandler.Update(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plant)
}

func (s *Server) deletePlant(c *gin.Context) {
	if err := s.plantHandler.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	rows, err := views.Get(c.Request.Context(), s.live, views.MessagesByPlant(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) sendMessage(c *gin.Context) {
	var cmd handlers.SendMessageCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd.PlantID = c.Param("id")

	result, err := s.chatHandler.SendMessage(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) clearChat(c *gin.Context) {
	if err := s.chatHandler.ClearChat(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
