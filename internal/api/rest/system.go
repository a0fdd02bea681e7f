package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenStimCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxEventLimit = 500

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// GET /api/v1/system/events?limit=N
func (s *Server) listEvents(c *gin.Context) {
	journal := s.lm.Journal()
	if journal == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeStimNotFound, "Event journal is disabled", nil))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeStimBadRequest, "Invalid limit", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := journal.Recent(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, "Failed to read events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// POST /api/v1/system/shutdown
func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// Request context endet mit der Antwort
	go func() {
		if err := s.lm.Shutdown(context.Background()); err != nil {
			s.logger.Error("Shutdown failed", zap.Error(err))
		}
	}()
}
