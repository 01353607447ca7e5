package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aide/internal/aideerrors"
)

// respondError maps the error taxonomy onto HTTP statuses. Remote and run
// failures collapse to a generic message; detail stays in the logs.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case aideerrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case aideerrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case aideerrors.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, aideerrors.ErrRunTimeout):
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "assistant failed to respond in time"})
	case errors.Is(err, aideerrors.ErrRunFailed),
		errors.Is(err, aideerrors.ErrNoAssistantReply),
		aideerrors.IsRemote(err):
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant failed to respond"})
	default:
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
