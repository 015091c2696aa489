package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"example.com/keeptend/assistant"
	"example.com/keeptend/domain"
	"example.com/keeptend/entitlement"
	"example.com/keeptend/handlers"
)

// writeError maps an error to a status code and JSON body
func writeError(c *gin.Context, err error) {
	var (
		schemaErr  *domain.SchemaValidationError
		dupErr     *domain.DuplicateKeyError
		serviceErr *assistant.ServiceError
		fieldErrs  validator.ValidationErrors
	)

	switch {
	case errors.As(err, &schemaErr), errors.As(err, &fieldErrs), errors.Is(err, handlers.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnknownEventType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &dupErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &serviceErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": serviceErr.UserMessage(),
			"kind":  serviceErr.Kind,
		})
	case errors.Is(err, entitlement.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, entitlement.ErrValidation):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
