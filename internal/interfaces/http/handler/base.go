package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledgerlens/backend/internal/application/receivables"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
	"github.com/ledgerlens/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, meta dto.Meta) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, meta))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleFetchError converts a fetch failure into the matching upstream error
// response. A superseded fetch maps to 409: the caller's request was replaced
// by a newer one for the same query and should be retried against that one's
// outcome.
func (h *BaseHandler) HandleFetchError(c *gin.Context, err error) {
	var parseErr *tally.ParseError

	switch {
	case errors.Is(err, receivables.ErrSuperseded):
		h.ErrorWithCode(c, dto.ErrCodeFetchSuperseded, "request replaced by a newer fetch for the same query")
	case errors.Is(err, tally.ErrTimeout):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamTimeout, "accounting system did not respond in time")
	case errors.Is(err, tally.ErrAuthExpired):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamAuth, "accounting system session has expired")
	case errors.As(err, &parseErr):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamInvalid, "accounting system returned an unreadable response")
	case errors.Is(err, tally.ErrUnavailable):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, "accounting system is unreachable")
	default:
		h.InternalError(c, "An unexpected error occurred")
	}
}
