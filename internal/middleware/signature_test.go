package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const testSecret = "maintenance-secret"

func setupSignedRouter(secret string) *gin.Engine {
	router := gin.New()
	router.Use(RequireSignature(secret, zerolog.Nop()))
	router.POST("/maintenances", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortUnreadableBody(c, err)
			return
		}
		c.String(http.StatusOK, string(body))
	})
	return router
}

func TestComputeSignature(t *testing.T) {
	body := []byte(`{"name":"patch window"}`)
	sig := ComputeSignature(body, []byte(testSecret))

	if len(sig) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(sig))
	}
	if !VerifySignature(body, sig, []byte(testSecret)) {
		t.Error("expected signature to verify")
	}
	if VerifySignature(body, sig, []byte("other")) {
		t.Error("expected signature with another secret to fail")
	}
	if VerifySignature([]byte(`{"name":"tampered"}`), sig, []byte(testSecret)) {
		t.Error("expected signature over another body to fail")
	}
}

func TestRequireSignature(t *testing.T) {
	body := `{"name":"patch window"}`
	valid := SignaturePrefix + ComputeSignature([]byte(body), []byte(testSecret))

	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"valid signature", testSecret, valid, http.StatusOK},
		{"missing header", testSecret, "", http.StatusUnauthorized},
		{"missing prefix", testSecret, strings.TrimPrefix(valid, SignaturePrefix), http.StatusUnauthorized},
		{"wrong digest", testSecret, SignaturePrefix + strings.Repeat("0", 64), http.StatusUnauthorized},
		{"verification disabled", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupSignedRouter(tt.secret)

			req := httptest.NewRequest(http.MethodPost, "/maintenances", strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set(SignatureHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == http.StatusOK && w.Body.String() != body {
				t.Errorf("expected body to reach the handler intact, got %q", w.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				if resp := decodeError(t, w); resp.Error != "unauthorized" {
					t.Errorf("expected error='unauthorized', got '%s'", resp.Error)
				}
			}
		})
	}
}
