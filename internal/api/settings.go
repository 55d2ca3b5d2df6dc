package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSettingsHandler(c *gin.Context) {
	Ok(c, s.settings.Settings(), map[string]any{"loaded": s.settings.Loaded()})
}

// patchSettingsHandler answers once the change is applied locally. The remote
// write finishes in the background and is logged by the synchronizer.
func (s *Server) patchSettingsHandler(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil || len(partial) == 0 {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	for key := range partial {
		if key == "" {
			Error(c, http.StatusBadRequest, "empty setting key", nil)
			return
		}
	}

	s.settings.Update(c.Request.Context(), partial)
	Ok(c, s.settings.Settings(), map[string]any{"remote": "pending"})
}
