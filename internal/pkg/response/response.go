package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/smartbrief/core/internal/pkg/apperr"
)

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// BadRequest sends a 400 validation error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, apperr.KindValidation, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, apperr.KindUnauthenticated, message)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	abort(c, http.StatusForbidden, apperr.KindForbidden, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, apperr.KindNotFound, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, apperr.KindConflict, message)
}

// TooManyRequests sends a 429 error response.
func TooManyRequests(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": 0, "code": http.StatusTooManyRequests, "error": "rate_limited", "message": message})
}

// Error maps err onto its HTTP status and aborts. Errors without a Kind,
// and internal ones, never expose their message.
func Error(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, apperr.KindInternal, "Internal server error")
		return
	}

	status := Status(e.Kind)
	message := e.Message
	switch e.Kind {
	case apperr.KindInternal:
		_ = c.Error(err)
		message = "Internal server error"
	case apperr.KindAuth:
		_ = c.Error(err)
		message = "Authentication error"
	}

	body := gin.H{"ok": 0, "code": status, "error": string(e.Kind), "message": message}
	if e.Kind == apperr.KindProvider && e.Provider != "" {
		body["provider"] = e.Provider
	}
	c.AbortWithStatusJSON(status, body)
}

// Status returns the HTTP status code for kind.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindValidation, apperr.KindInvalidAmount, apperr.KindInsufficientCredits, apperr.KindExtraction:
		return http.StatusBadRequest
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "error": string(kind), "message": message})
}
