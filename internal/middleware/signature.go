package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of an admin request body.
	SignatureHeader = "X-Escalator-Signature"
	// SignaturePrefix precedes the hex digest in SignatureHeader.
	SignaturePrefix = "sha256="
)

// ComputeSignature returns the hex encoded HMAC-SHA256 of body.
func ComputeSignature(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature with the expected digest in constant time.
func VerifySignature(body []byte, signature string, secret []byte) bool {
	return hmac.Equal([]byte(ComputeSignature(body, secret)), []byte(signature))
}

// RequireSignature rejects requests whose body is not signed with secret.
// An empty secret disables verification.
func RequireSignature(secret string, logger zerolog.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader(SignatureHeader)
		signature, ok := strings.CutPrefix(header, SignaturePrefix)
		if header == "" || !ok {
			unauthorized(c, logger, "missing or malformed signature")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortUnreadableBody(c, err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !VerifySignature(body, signature, key) {
			unauthorized(c, logger, "invalid signature")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, logger zerolog.Logger, message string) {
	logger.Warn().
		Str("client_ip", c.ClientIP()).
		Str("path", c.Request.URL.Path).
		Msg(message)
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}
