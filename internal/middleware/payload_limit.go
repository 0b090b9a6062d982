// Package middleware provides gin middleware for the escalator's admin API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes is the request body limit used when none is configured.
const DefaultMaxBodyBytes int64 = 64 << 10

const maxBodyKey = "maxBodyBytes"

// ErrorResponse is the JSON body of every error the admin API returns.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

// BodyLimit rejects requests whose body exceeds maxBytes. Declared lengths are
// rejected up front; chunked bodies fail on read and are answered by BodyLimitErrors.
func BodyLimit(maxBytes int64, logger zerolog.Logger) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			logRejected(logger, c, c.Request.ContentLength, maxBytes)
			abortTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Set(maxBodyKey, maxBytes)
		c.Next()
	}
}

// BodyLimitErrors turns a handler's *http.MaxBytesError into a 413 response.
// It must run before BodyLimit in the chain.
func BodyLimitErrors(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, ginErr := range c.Errors {
			var tooLarge *http.MaxBytesError
			if !errors.As(ginErr.Err, &tooLarge) {
				continue
			}
			limit := c.GetInt64(maxBodyKey)
			logRejected(logger, c, tooLarge.Limit, limit)

			c.Errors = c.Errors[:0]
			abortTooLarge(c, limit)
			return
		}
	}
}

// AbortUnreadableBody aborts a request whose body could not be read. Oversized
// bodies are left for BodyLimitErrors to answer; anything else is a 400.
func AbortUnreadableBody(c *gin.Context, err error) {
	_ = c.Error(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "badRequest",
		Message: "failed to read request body",
	})
}

func logRejected(logger zerolog.Logger, c *gin.Context, size, limit int64) {
	logger.Warn().
		Str("client_ip", c.ClientIP()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int64("size", size).
		Int64("max_bytes", limit).
		Msg("request body too large")
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:    "payloadTooLarge",
		Message:  "request body exceeds the maximum allowed size",
		MaxBytes: limit,
	})
}
