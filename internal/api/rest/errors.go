package rest

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/KevinKickass/OpenStimCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps controller errors to HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, params.ErrParamNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, types.CodeStimNotFound
	case errors.Is(err, stimulation.ErrValidation):
		return http.StatusBadRequest, types.CodeStimBadRequest
	case errors.Is(err, stimulation.ErrLifecycle):
		return http.StatusConflict, types.CodeStimConflict
	default:
		return http.StatusInternalServerError, types.CodeStimInternal
	}
}

func (s *Server) respondError(c *gin.Context, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(message, zap.Error(err))
	}
	c.JSON(status, types.NewErrorResponse(code, message, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeStimBadRequest, "Invalid request body", err.Error()))
}
