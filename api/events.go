package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/keeptend/domain"
)

// listEvents returns the log in commit order
func (s *Server) listEvents(c *gin.Context) {
	events, err := s.store.Events(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// commitEvent accepts a wire envelope {"type":..,"data":..}
func (s *Server) commitEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := domain.Decode(body)
	if err != nil {
		writeError(c, err)
		return
	}

	event, err := s.store.Commit(c.Request.Context(), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}
