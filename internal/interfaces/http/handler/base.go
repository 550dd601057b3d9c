package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	orderapp "github.com/jdfresh/backend/internal/application/order"
	"github.com/jdfresh/backend/internal/domain/shared"
	"github.com/jdfresh/backend/internal/interfaces/http/dto"
	"github.com/jdfresh/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common response helpers for all handlers
type BaseHandler struct {
	logger *zap.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(logger *zap.Logger) BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return BaseHandler{logger: logger}
}

// getRequestID extracts the request ID set by the request ID middleware
func (h *BaseHandler) getRequestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

// actor extracts the authenticated principal. Writes a 401 response and
// returns false when the request carries no valid identity.
func (h *BaseHandler) actor(c *gin.Context) (orderapp.Actor, bool) {
	a, ok := middleware.GetActor(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return orderapp.Actor{}, false
	}
	return a, true
}

// Success sends a 200 response with data
func (h *BaseHandler) Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with data and pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data interface{}, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 response with data
func (h *BaseHandler) Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the status mapped from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	normalized := dto.NormalizeErrorCode(code)
	c.JSON(dto.GetHTTPStatus(normalized), dto.NewErrorResponseWithRequestID(normalized, message, h.getRequestID(c)))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeForbidden, message)
}

// InternalError sends a 500 response. The underlying error is logged but
// never exposed to the client.
func (h *BaseHandler) InternalError(c *gin.Context, err error) {
	h.logger.Error("Internal server error",
		zap.String("request_id", h.getRequestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An internal error occurred")
}

// HandleError maps domain errors to HTTP responses. Unknown errors
// become opaque 500s.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, domainErr.Code, domainErr.Message)
		return
	}
	h.InternalError(c, err)
}

// HandleValidationError sends a 400 with per-field validation details
func (h *BaseHandler) HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, h.getRequestID(c)))
}
