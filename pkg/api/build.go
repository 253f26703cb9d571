package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

const previewExpiredHTML = `<html><body><h1>Preview expired</h1><p>This preview is no longer available. Please generate a new one.</p></body></html>`

func (s *Server) handleBuildStream(c *gin.Context) {
	s.streamEvents(c, models.AgentBuild, c.Param("session_id"), "")
}

// handleBuildPreview serves generated HTML. Scripts are disabled via CSP:
// previews come from an LLM and render in the user's browser.
func (s *Server) handleBuildPreview(c *gin.Context) {
	html, err := s.store.LoadPreview(c.Request.Context(), c.Param("preview_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.Data(status, "text/html; charset=utf-8", []byte(previewExpiredHTML))
		return
	}

	c.Header("Content-Security-Policy", "script-src 'none'; object-src 'none'")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
