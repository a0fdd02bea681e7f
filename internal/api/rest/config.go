package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/config/core
func (s *Server) getCoreConfig(c *gin.Context) {
	cc, err := s.lm.Controller().CoreConfigController()
	if err != nil {
		s.respondError(c, "Failed to read core config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": cc.Path(), "config": cc.Config(), "channels": cc.Config().Channels()})
}

// GET /api/v1/config/model
func (s *Server) getModelConfig(c *gin.Context) {
	mc, err := s.lm.Controller().ModelConfigController()
	if err != nil {
		s.respondError(c, "Failed to read model config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": mc.Path(), "config": mc.Config()})
}

// POST /api/v1/config/reload reloads core and model config files.
func (s *Server) reloadConfig(c *gin.Context) {
	if err := s.lm.Controller().LoadCoreConfigFile(); err != nil {
		s.respondError(c, "Failed to reload config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Core config reloaded"})
}
