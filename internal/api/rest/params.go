package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ParamValueRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

type ParamsLoadRequest struct {
	// Path is a file or directory; empty loads the default file.
	Path string `json:"path"`
}

// ChannelResponse is the per-channel view.
type ChannelResponse struct {
	Channel   string  `json:"channel"`
	Valid     bool    `json:"valid"`
	Amp       float64 `json:"amp,omitempty"`
	PWMin     int     `json:"pw_min,omitempty"`
	PWMax     int     `json:"pw_max,omitempty"`
	IPI       int     `json:"ipi,omitempty"`
	Intensity int     `json:"intensity"`
}

// ChannelPatchRequest updates only the fields present.
type ChannelPatchRequest struct {
	Amp   *float64 `json:"amp"`
	PWMin *int     `json:"pw_min"`
	PWMax *int     `json:"pw_max"`
	IPI   *int     `json:"ipi"`
}

type ChannelParamsRequest struct {
	PWMax *int `json:"pw_max" binding:"required"`
	PWMin *int `json:"pw_min" binding:"required"`
	Amp   *int `json:"amp" binding:"required"`
}

// GET /api/v1/params
func (s *Server) listParams(c *gin.Context) {
	values, err := s.lm.Controller().GetAllStimParams()
	if err != nil {
		s.respondError(c, "Failed to list params", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"params": values, "count": len(values)})
}

// GET /api/v1/params/:key
func (s *Server) getParam(c *gin.Context) {
	key := c.Param("key")
	v, err := s.lm.Controller().GetStimParam(key)
	if err != nil {
		s.respondError(c, "Failed to read param", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
}

// PUT /api/v1/params/:key
func (s *Server) setParam(c *gin.Context) {
	var req ParamValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := c.Param("key")
	if err := s.lm.Controller().AddOrUpdateStimParam(key, *req.Value); err != nil {
		s.respondError(c, "Failed to set param", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": *req.Value})
}

// POST /api/v1/params/save
func (s *Server) saveParams(c *gin.Context) {
	if err := s.lm.Controller().SaveParamsJson(); err != nil {
		s.respondError(c, "Failed to save params", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Params saved"})
}

// POST /api/v1/params/load
func (s *Server) loadParams(c *gin.Context) {
	var req ParamsLoadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := s.lm.Controller().LoadParamsJson(req.Path); err != nil {
		s.respondError(c, "Failed to load params", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Params reloaded"})
}

// GET /api/v1/channels/:alias
func (s *Server) getChannel(c *gin.Context) {
	ctrl := s.lm.Controller()
	alias := c.Param("alias")

	valid, err := ctrl.IsFingerValid(alias)
	if err != nil {
		s.respondError(c, "Failed to read channel", err)
		return
	}
	resp := ChannelResponse{Channel: alias, Valid: valid}
	if !valid {
		c.JSON(http.StatusOK, resp)
		return
	}

	if resp.Amp, err = ctrl.GetChannelAmp(alias); err == nil {
		if resp.PWMin, err = ctrl.GetChannelPWMin(alias); err == nil {
			if resp.PWMax, err = ctrl.GetChannelPWMax(alias); err == nil {
				resp.IPI, err = ctrl.GetChannelIPI(alias)
			}
		}
	}
	if err != nil {
		s.respondError(c, "Failed to read channel", err)
		return
	}
	if resp.Intensity, err = ctrl.GetStimIntensity(alias); err != nil {
		s.respondError(c, "Failed to read channel", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PATCH /api/v1/channels/:alias
func (s *Server) updateChannel(c *gin.Context) {
	var req ChannelPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctrl := s.lm.Controller()
	alias := c.Param("alias")
	var err error
	if req.Amp != nil && err == nil {
		err = ctrl.SetChannelAmp(alias, *req.Amp)
	}
	if req.PWMin != nil && err == nil {
		err = ctrl.SetChannelPWMin(alias, *req.PWMin)
	}
	if req.PWMax != nil && err == nil {
		err = ctrl.SetChannelPWMax(alias, *req.PWMax)
	}
	if req.IPI != nil && err == nil {
		err = ctrl.SetChannelIPI(alias, *req.IPI)
	}
	if err != nil {
		s.respondError(c, "Failed to update channel", err)
		return
	}
	s.getChannel(c)
}

// PUT /api/v1/channels/:alias sets pw_max, pw_min and amp together.
func (s *Server) replaceChannelParams(c *gin.Context) {
	var req ChannelParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.lm.Controller().UpdateChannelParams(c.Param("alias"), *req.PWMax, *req.PWMin, *req.Amp); err != nil {
		s.respondError(c, "Failed to update channel", err)
		return
	}
	s.getChannel(c)
}
