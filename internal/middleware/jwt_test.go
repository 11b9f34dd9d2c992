package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"safeflag/internal/service"
	"safeflag/pkg/constraints"

	"github.com/gin-gonic/gin"
)

type stubParser struct{}

func (stubParser) ParseToken(token string) (*service.UserClaims, error) {
	switch token {
	case "manager-token":
		return &service.UserClaims{UserID: "1", Username: "manager@safeconfig.ai", Role: constraints.RoleManager}, nil
	case "dev-token":
		return &service.UserClaims{UserID: "2", Username: "dev@safeconfig.ai", Role: constraints.RoleDeveloper}, nil
	}
	return nil, errors.New("bad token")
}

func TestJWTMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware(), JWTMiddleware(stubParser{}))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, service.GetOperator(c.Request.Context()))
	})
	r.POST("/flags", RequireRole(constraints.RoleManager), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	tests := []struct {
		name     string
		method   string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"missing token", "GET", "/me", "", http.StatusUnauthorized, ""},
		{"malformed header", "GET", "/me", "Token manager-token", http.StatusUnauthorized, ""},
		{"invalid token", "GET", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", "GET", "/me", "Bearer dev-token", http.StatusOK, "dev@safeconfig.ai"},
		{"query token", "GET", "/me?token=manager-token", "", http.StatusOK, "manager@safeconfig.ai"},
		{"developer on manager route", "POST", "/flags", "Bearer dev-token", http.StatusForbidden, ""},
		{"manager on manager route", "POST", "/flags", "Bearer manager-token", http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if w.Header().Get(TraceHeader) == "" {
				t.Error("trace header missing")
			}
		})
	}
}

func TestTraceMiddleware_PropagatesHeader(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/t", func(c *gin.Context) {
		c.String(http.StatusOK, service.GetTraceID(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/t", nil)
	req.Header.Set(TraceHeader, "abc-123")
	r.ServeHTTP(w, req)

	if w.Body.String() != "abc-123" || w.Header().Get(TraceHeader) != "abc-123" {
		t.Errorf("trace not propagated: body=%q header=%q", w.Body.String(), w.Header().Get(TraceHeader))
	}
}
