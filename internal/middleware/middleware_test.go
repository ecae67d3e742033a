package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/union-bmm/backend/internal/auth"
)

func newRouter(t *testing.T, jwtSvc *auth.JWTService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zaptest.NewLogger(t)), CORS("https://gate.example.org"))
	staff := r.Group("/staff", JWT(jwtSvc))
	staff.GET("/admin", RequireRole(auth.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	staff.GET("/gate", RequireRole(auth.RoleAdmin, auth.RoleGate), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextStaffID))
	})
	return r
}

func TestStaffAuth(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	r := newRouter(t, jwtSvc)
	gate, err := jwtSvc.Generate("gate-1", "Gate One", auth.RoleGate)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no header", path: "/staff/gate", want: http.StatusUnauthorized},
		{name: "not bearer", path: "/staff/gate", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", path: "/staff/gate", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "gate on gate route", path: "/staff/gate", header: "Bearer " + gate, want: http.StatusOK},
		{name: "gate on admin route", path: "/staff/admin", header: "Bearer " + gate, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(t, auth.NewJWTService("secret", 1))

	req := httptest.NewRequest(http.MethodOptions, "/staff/gate", nil)
	req.Header.Set("Origin", "https://gate.example.org")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://gate.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/staff/gate", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
