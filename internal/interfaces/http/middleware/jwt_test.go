package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/auth"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/config"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.APIConfig{
		JWTSecret: "test-secret-key-at-least-32-chars",
		JWTIssuer: "test-issuer",
	})
}

func newTestToken(t *testing.T, svc *auth.JWTService, ttl time.Duration, scopes ...string) string {
	t.Helper()
	token, err := svc.GenerateToken("mercurios-dashboard", ttl, scopes...)
	require.NoError(t, err)
	return token
}

func newProtectedRouter(svc *auth.JWTService, scope string) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddleware(svc))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/api/v1/etl/sync-full", RequireScope(scope), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetJWTSubject(c)})
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token := newTestToken(t, svc, time.Minute, auth.ScopeSyncTrigger)

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/test", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, "mercurios-dashboard", claims.Subject)
		assert.True(t, claims.HasScope(auth.ScopeSyncTrigger))
		assert.Equal(t, "mercurios-dashboard", GetJWTSubject(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()
	other := auth.NewJWTService(config.APIConfig{JWTSecret: "another-secret-key-of-32-chars!!", JWTIssuer: "test-issuer"})

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: dto.ErrCodeTokenInvalid},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", code: dto.ErrCodeTokenInvalid},
		{name: "empty bearer", header: BearerPrefix, code: dto.ErrCodeTokenInvalid},
		{name: "garbage token", header: BearerPrefix + "not.a.jwt", code: dto.ErrCodeTokenInvalid},
		{name: "expired token", header: BearerPrefix + newTestToken(t, svc, -time.Minute, auth.ScopeSyncTrigger), code: dto.ErrCodeTokenExpired},
		{name: "foreign signature", header: BearerPrefix + newTestToken(t, other, time.Minute, auth.ScopeSyncTrigger), code: dto.ErrCodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newProtectedRouter(svc, auth.ScopeSyncTrigger)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/sync-full", nil)
			req.Header.Set(RequestIDHeader, "req-"+tt.name)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeError(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-"+tt.name, resp.Error.RequestID)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := newProtectedRouter(newTestJWTService(), auth.ScopeSyncTrigger)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService()

	t.Run("token with scope passes", func(t *testing.T) {
		router := newProtectedRouter(svc, auth.ScopeSyncTrigger)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/sync-full", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+newTestToken(t, svc, time.Minute, auth.ScopeSyncRead, auth.ScopeSyncTrigger))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"subject":"mercurios-dashboard"}`, w.Body.String())
	})

	t.Run("read-only token is forbidden", func(t *testing.T) {
		router := newProtectedRouter(svc, auth.ScopeSyncTrigger)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/sync-full", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+newTestToken(t, svc, time.Minute, auth.ScopeSyncRead))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, w).Error.Code)
	})

	t.Run("no claims in context is forbidden", func(t *testing.T) {
		router := gin.New()
		router.GET("/x", RequireScope(auth.ScopeSyncRead), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
