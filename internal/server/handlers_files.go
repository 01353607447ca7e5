package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"aide/internal/auth"
)

func (s *Server) handleDownloadFile(c *gin.Context) {
	ctx := c.Request.Context()
	fileID := c.Param("file_id")

	filename, err := s.fileNames.Resolve(ctx, fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	content, err := s.deps.Remote.FileContent(ctx, fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer content.Close()

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, content); err != nil {
		s.logger.Warn("streaming file %s: %v", fileID, err)
	}
}

func (s *Server) handleUsage(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.deps.Usage.ListByUser(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}
