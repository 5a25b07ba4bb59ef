package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAuthTestConfig(t *testing.T) {
	t.Helper()
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("hash verifies against the original password", func(t *testing.T) {
		hash, err := HashPassword("Student@123")
		require.NoError(t, err)
		assert.Contains(t, hash, "$")
		assert.True(t, verifyPassword("Student@123", hash))
	})

	t.Run("wrong password does not verify", func(t *testing.T) {
		hash, err := HashPassword("Student@123")
		require.NoError(t, err)
		assert.False(t, verifyPassword("Student@124", hash))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		first, err := HashPassword("Student@123")
		require.NoError(t, err)
		second, err := HashPassword("Student@123")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash never verifies", func(t *testing.T) {
		assert.False(t, verifyPassword("Student@123", "not-a-hash"))
		assert.False(t, verifyPassword("Student@123", "!!$!!"))
	})
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig(t)

	tokenString, err := generateJWT("user-1", "student@learnhub.local", "STUDENT")
	require.NoError(t, err)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "student@learnhub.local", claims["email"])
	assert.Equal(t, "STUDENT", claims["role"])
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))
}

func TestAuthServiceRegister(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("creates a student account and returns a token", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, email, full_name, role, password_hash) VALUES ($1, $2, $3, $4, $5)")).
			WithArgs(sqlmock.AnyArg(), "new@learnhub.local", "New Student", "STUDENT", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		body := `{"email":"New@learnhub.local","password":"Student@123","fullName":"New Student"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Register(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "accessToken")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email yields 409", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(assert.AnError)

		body := `{"email":"taken@learnhub.local","password":"Student@123","fullName":"Taken"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Register(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "Email already exists")
	})

	t.Run("rejects an unvalidatable payload", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		body := `{"email":"not-an-email","password":"short","fullName":"X"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		body := `{"email":"a@b.co","password":"Student@123","fullName":"AB","role":"ADMIN"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthServiceLogin(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("valid credentials return a bearer token", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		svc := NewAuthService(db, redisClient)

		hash, err := HashPassword("Student@123")
		require.NoError(t, err)

		redisMock.ExpectGet("login_attempts:student@learnhub.local").RedisNil()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, password_hash FROM users WHERE email = $1")).
			WithArgs("student@learnhub.local").
			WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}).
				AddRow("user-1", "STUDENT", hash))

		body := `{"email":"Student@learnhub.local","password":"Student@123"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "accessToken")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password is rejected and counted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		svc := NewAuthService(db, redisClient)

		hash, err := HashPassword("Student@123")
		require.NoError(t, err)

		redisMock.ExpectGet("login_attempts:student@learnhub.local").RedisNil()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, password_hash FROM users WHERE email = $1")).
			WithArgs("student@learnhub.local").
			WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}).
				AddRow("user-1", "STUDENT", hash))
		redisMock.ExpectIncr("login_attempts:student@learnhub.local").SetVal(1)
		redisMock.ExpectExpire("login_attempts:student@learnhub.local", svc.cfg.RateWindow).SetVal(true)

		body := `{"email":"student@learnhub.local","password":"WrongPass1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid credentials")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("unknown email is indistinguishable from a bad password", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		svc := NewAuthService(db, redisClient)

		redisMock.ExpectGet("login_attempts:ghost@learnhub.local").RedisNil()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, password_hash FROM users WHERE email = $1")).
			WithArgs("ghost@learnhub.local").
			WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}))
		redisMock.ExpectIncr("login_attempts:ghost@learnhub.local").SetVal(1)
		redisMock.ExpectExpire("login_attempts:ghost@learnhub.local", svc.cfg.RateWindow).SetVal(true)

		body := `{"email":"ghost@learnhub.local","password":"Student@123"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid credentials")
	})

	t.Run("too many failed attempts trip the rate limit", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		svc := NewAuthService(db, redisClient)

		redisMock.ExpectGet("login_attempts:student@learnhub.local").SetVal("10")

		body := `{"email":"student@learnhub.local","password":"Student@123"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.Login(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

func TestAuthServiceLogout(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("revokes the presented token", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		svc := NewAuthService(db, redisClient)

		redisMock.ExpectSet("blacklist:some.jwt.token", "1", 24*time.Hour).SetVal("OK")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer some.jwt.token")
		w := httptest.NewRecorder()
		svc.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		w := httptest.NewRecorder()
		svc.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthServiceGetUserAccount(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("returns profile with wallet balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT u.id, u.email, u.full_name, u.role, w.balance")).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role", "balance"}).
				AddRow("user-1", "student@learnhub.local", "Demo Student", "STUDENT", "801000"))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/account", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", "user-1"))
		w := httptest.NewRecorder()
		svc.GetUserAccount(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "801000")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing identity yields 401", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAuthService(db, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/account", nil)
		w := httptest.NewRecorder()
		svc.GetUserAccount(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
