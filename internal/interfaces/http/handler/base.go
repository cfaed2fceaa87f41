// Package handler implements the ETL control API endpoints.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/dto"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// Unavailable sends a 503 service unavailable response
func (h *BaseHandler) Unavailable(c *gin.Context, message string) {
	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, message)
}

// HandleSyncError converts an ETL failure into an error response. The
// message is the error text so the dashboard can show what failed.
func (h *BaseHandler) HandleSyncError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	h.ErrorWithCode(c, syncErrorCode(err), err.Error())
}

func syncErrorCode(err error) string {
	var etlErr *etl.Error
	if !errors.As(err, &etlErr) {
		return dto.ErrCodeSyncFailed
	}
	switch etlErr.Kind {
	case etl.KindAuthentication:
		return dto.ErrCodeSyncAuthentication
	case etl.KindTransientNetwork:
		return dto.ErrCodeSyncUpstream
	case etl.KindTransform:
		return dto.ErrCodeSyncTransform
	case etl.KindLoad:
		return dto.ErrCodeSyncLoad
	default:
		return dto.ErrCodeSyncFailed
	}
}
