package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/gin-gonic/gin"
)

type StimulateRequest struct {
	Channel   string   `json:"channel" binding:"required"`
	Magnitude *float64 `json:"magnitude" binding:"required"`
}

type AnalogRequest struct {
	Channel            string `json:"channel" binding:"required"`
	PulseWidth         *int   `json:"pulse_width" binding:"required"`
	Amplitude          *int   `json:"amplitude"`
	InterPulseInterval *int   `json:"ipi"`
}

// GET /api/v1/stimulator/status
func (s *Server) getStimulatorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Controller().Status())
}

// GET /api/v1/stimulator/mode
func (s *Server) getModeValid(c *gin.Context) {
	valid, err := s.lm.Controller().IsModeValid()
	if err != nil {
		s.respondError(c, "Failed to check mode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode_valid": valid})
}

// POST /api/v1/stimulator/initialize
func (s *Server) initialize(c *gin.Context) {
	ctrl := s.lm.Controller()
	if err := ctrl.Initialize(c.Request.Context()); err != nil {
		s.respondError(c, "Failed to initialize stimulator", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/stimulator/shutdown
func (s *Server) shutdownStimulator(c *gin.Context) {
	ctrl := s.lm.Controller()
	if err := ctrl.Shutdown(); err != nil {
		s.respondError(c, "Failed to shut down stimulator", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/stimulator/reset
func (s *Server) resetRadio(c *gin.Context) {
	ctrl := s.lm.Controller()
	if err := ctrl.ResetRadio(c.Request.Context()); err != nil {
		s.respondError(c, "Failed to reset radio", err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// POST /api/v1/stimulator/start
func (s *Server) startStimulation(c *gin.Context) {
	if err := s.lm.Controller().StartStimulation(); err != nil {
		s.respondError(c, "Failed to start stimulation", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Stim start requested"})
}

// POST /api/v1/stimulator/stop
func (s *Server) stopStimulation(c *gin.Context) {
	if err := s.lm.Controller().StopStimulation(); err != nil {
		s.respondError(c, "Failed to stop stimulation", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Stim stop requested"})
}

// POST /api/v1/stimulator/stimulate/normalized
func (s *Server) stimulateNormalized(c *gin.Context) {
	var req StimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl := s.lm.Controller()
	if err := ctrl.StimulateNormalized(req.Channel, *req.Magnitude); err != nil {
		s.respondError(c, "Stimulation failed", err)
		return
	}
	s.respondIntensity(c, ctrl, req.Channel)
}

// POST /api/v1/stimulator/stimulate/mode
func (s *Server) stimWithMode(c *gin.Context) {
	var req StimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl := s.lm.Controller()
	if err := ctrl.StimWithMode(req.Channel, *req.Magnitude); err != nil {
		s.respondError(c, "Stimulation failed", err)
		return
	}
	s.respondIntensity(c, ctrl, req.Channel)
}

// POST /api/v1/stimulator/stimulate/analog
func (s *Server) stimulateAnalog(c *gin.Context) {
	var req AnalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	amp, ipi := stimulation.DefaultAmplitude, stimulation.DefaultInterPulseInterval
	if req.Amplitude != nil {
		amp = *req.Amplitude
	}
	if req.InterPulseInterval != nil {
		ipi = *req.InterPulseInterval
	}

	if err := s.lm.Controller().StimulateAnalogWith(req.Channel, *req.PulseWidth, amp, ipi); err != nil {
		s.respondError(c, "Analog stimulation failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"channel":     req.Channel,
		"pulse_width": *req.PulseWidth,
		"amplitude":   amp,
		"ipi":         ipi,
	})
}

func (s *Server) respondIntensity(c *gin.Context, ctrl *stimulation.Controller, alias string) {
	intensity, err := ctrl.GetStimIntensity(alias)
	if err != nil {
		s.respondError(c, "Failed to read intensity", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"channel": alias, "intensity": intensity})
}
