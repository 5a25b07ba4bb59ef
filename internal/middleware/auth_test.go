package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value("userID").(string)
		role, _ := r.Context().Value("userRole").(string)
		w.Write([]byte(userID + "/" + role))
	})

	t.Run("valid token populates the request identity", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"sub":   "user-1",
			"email": "student@learnhub.local",
			"role":  "STUDENT",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1/STUDENT", w.Body.String())
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("other-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		InitAuthMiddleware(redisClient)
		defer InitAuthMiddleware(nil)

		token := signTestToken(t, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		redisMock.ExpectExists("blacklist:" + token).SetVal(1)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		AuthMiddleware(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token revoked")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestOptionalAuth(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	echoIdentity := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value("userID").(string)
		role, _ := r.Context().Value("userRole").(string)
		w.Write([]byte(userID + "/" + role))
	})

	t.Run("valid token populates the request identity", func(t *testing.T) {
		token := signTestToken(t, jwt.MapClaims{
			"sub":   "user-1",
			"email": "instructor@learnhub.local",
			"role":  "INSTRUCTOR",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/course-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		OptionalAuth(echoIdentity).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1/INSTRUCTOR", w.Body.String())
	})

	t.Run("missing header passes through anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/course-1", nil)
		w := httptest.NewRecorder()
		OptionalAuth(echoIdentity).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/", w.Body.String())
	})

	t.Run("invalid token passes through anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/course-1", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		OptionalAuth(echoIdentity).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/", w.Body.String())
	})

	t.Run("revoked token passes through anonymously", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		InitAuthMiddleware(redisClient)
		defer InitAuthMiddleware(nil)

		token := signTestToken(t, jwt.MapClaims{
			"sub":  "user-1",
			"role": "INSTRUCTOR",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		redisMock.ExpectExists("blacklist:" + token).SetVal(1)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/course-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		OptionalAuth(echoIdentity).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/", w.Body.String())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestRequireRole(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	withRole := func(role string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/revenue", nil)
		return req.WithContext(context.WithValue(req.Context(), "userRole", role))
	}

	t.Run("allowed role passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireRole("ADMIN")(okHandler).ServeHTTP(w, withRole("ADMIN"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other roles are forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireRole("ADMIN")(okHandler).ServeHTTP(w, withRole("STUDENT"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no identity at all is forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/revenue", nil)
		RequireRole("ADMIN")(okHandler).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("any of several roles is enough", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireRole("INSTRUCTOR", "ADMIN")(okHandler).ServeHTTP(w, withRole("INSTRUCTOR"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
