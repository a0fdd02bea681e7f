package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"github.com/KevinKickass/OpenStimCore/internal/types"
	"github.com/gin-gonic/gin"
)

// Target follows transport.TargetFromInt; omitted means broadcast.
type TargetRequest struct {
	Target *int `json:"target"`
}

func (r TargetRequest) target() int {
	if r.Target == nil {
		return int(transport.Broadcast)
	}
	return *r.Target
}

type RequestConfigsRequest struct {
	TargetRequest
	Command *int `json:"command" binding:"required"`
	ID      *int `json:"id" binding:"required"`
}

type WaveformRequest struct {
	TargetRequest
	// Samples: 16 cathodic then 16 anodic values, 0..255.
	Samples []int `json:"samples" binding:"required,len=32"`
	EventID *int  `json:"event_id" binding:"required"`
}

type WaveformFileRequest struct {
	File    string `json:"file" binding:"required"`
	EventID *int   `json:"event_id" binding:"required"`
}

type EventShapeRequest struct {
	TargetRequest
	Cathodic *int `json:"cathodic" binding:"required"`
	Anodic   *int `json:"anodic" binding:"required"`
	EventID  *int `json:"event_id" binding:"required"`
}

type IPDRequest struct {
	TargetRequest
	IPD     *int `json:"ipd" binding:"required"`
	EventID *int `json:"event_id" binding:"required"`
}

// basicResult reports whether the call reached the device; without the
// capability the controller absorbs the call.
func (s *Server) basicResult(c *gin.Context, op string, err error) {
	if err != nil {
		s.respondError(c, op+" failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"op":              op,
		"basic_supported": s.lm.Controller().BasicSupported(),
	})
}

func bindBasic(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// POST /api/v1/basic/save
func (s *Server) basicSave(c *gin.Context) {
	var req TargetRequest
	if !bindBasic(c, &req) {
		return
	}
	s.basicResult(c, "Save", s.lm.Controller().Save(req.target()))
}

// POST /api/v1/basic/load
func (s *Server) basicLoad(c *gin.Context) {
	var req TargetRequest
	if !bindBasic(c, &req) {
		return
	}
	s.basicResult(c, "Load", s.lm.Controller().Load(req.target()))
}

// POST /api/v1/basic/request-configs
func (s *Server) basicRequestConfigs(c *gin.Context) {
	var req RequestConfigsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.basicResult(c, "RequestConfigs", s.lm.Controller().RequestConfigs(req.target(), *req.Command, *req.ID))
}

// POST /api/v1/basic/waveform
func (s *Server) basicUpdateWaveform(c *gin.Context) {
	var req WaveformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.basicResult(c, "UpdateWaveform", s.lm.Controller().UpdateWaveformSamplesFor(req.target(), req.Samples, *req.EventID))
}

// POST /api/v1/basic/waveform/setup uploads the waveform and selects it
// as both shapes of the event.
func (s *Server) basicWaveformSetup(c *gin.Context) {
	var req WaveformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := transport.WaveformFromSamples(req.Samples)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeStimBadRequest, "Invalid waveform", err.Error()))
		return
	}
	s.basicResult(c, "WaveformSetup", s.lm.Controller().WaveformSetup(w, *req.EventID, req.target()))
}

// POST /api/v1/basic/waveform/file
func (s *Server) basicLoadWaveform(c *gin.Context) {
	var req WaveformFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.basicResult(c, "LoadWaveform", s.lm.Controller().LoadWaveform(req.File, *req.EventID))
}

// POST /api/v1/basic/event-shape
func (s *Server) basicUpdateEventShape(c *gin.Context) {
	var req EventShapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.basicResult(c, "UpdateEventShape",
		s.lm.Controller().UpdateEventShapeFor(req.target(), *req.Cathodic, *req.Anodic, *req.EventID))
}

// POST /api/v1/basic/ipd
func (s *Server) basicUpdateIPD(c *gin.Context) {
	var req IPDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.basicResult(c, "UpdateIPD", s.lm.Controller().UpdateIPD(*req.IPD, *req.EventID, req.target()))
}
