package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meterscan/internal/observability/logger"
	"go.uber.org/zap"
)

// GetImage streams a stored meter photo. Refs never change content, so the
// response is cacheable indefinitely.
func (s *Server) GetImage(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))

	rc, contentType, err := s.images.Open(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, rc); err != nil {
		logger.FromContext(c.Request.Context()).Warn("image stream interrupted",
			zap.String("image_ref", ref),
			zap.Error(err),
		)
	}
}
