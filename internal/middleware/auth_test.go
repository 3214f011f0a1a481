package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

func signToken(t *testing.T, secret []byte, expiresAt time.Time) string {
	t.Helper()

	claims := &models.Claims{
		Username: "moderator1",
		Role:     "moderator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func newProtectedRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(secret, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username"), "role": c.GetString("role")})
	})
	return router
}

func get(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	router := newProtectedRouter(secret)

	t.Run("valid token", func(t *testing.T) {
		rec := get(router, "Bearer "+signToken(t, secret, time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"username":"moderator1"`)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := get(router, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := get(router, "Token abc")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		rec := get(router, "Bearer "+signToken(t, secret, time.Now().Add(-time.Hour)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "Token expired")
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := get(router, "Bearer "+signToken(t, []byte("other-secret"), time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
