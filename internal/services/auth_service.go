package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	cfg       *config.NotificationConfig
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"student@learnhub.local"`
	Password string `json:"password" validate:"required,min=6" example:"Student@123"`
}

// LoginResponse represents the authentication response
// @Description Authentication response structure
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType" example:"Bearer"`
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"student@learnhub.local"`
	Password string `json:"password" validate:"required,min=6" example:"Student@123"`
	FullName string `json:"fullName" validate:"required,min=2" example:"Demo Student"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		cfg:       config.LoadNotificationConfig(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new student account with email, password and name
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} LoginResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		zap.L().Error("password hashing failed", zap.String("email", req.Email), zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	userID := uuid.NewString()
	_, err = s.db.ExecContext(r.Context(),
		"INSERT INTO users (id, email, full_name, role, password_hash) VALUES ($1, $2, $3, $4, $5)",
		userID, strings.ToLower(req.Email), req.FullName, models.RoleStudent, hashedPassword)
	if err != nil {
		zap.L().Warn("user creation failed", zap.String("email", req.Email), zap.Error(err))
		SendErrorResponse(w, "Email already exists", http.StatusConflict, nil)
		return
	}

	token, err := generateJWT(userID, strings.ToLower(req.Email), models.RoleStudent)
	if err != nil {
		zap.L().Error("jwt generation failed", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	zap.L().Info("user registered", zap.String("user_id", userID), zap.String("email", req.Email))
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, TokenType: "Bearer"})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 429 {object} ErrorResponse "Too many attempts"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(req.Email)
	if err := s.checkLoginRateLimit(r.Context(), email); err != nil {
		SendErrorResponse(w, "Too many login attempts, try again later", http.StatusTooManyRequests, nil)
		return
	}

	var userID, role, hashedPassword string
	err := s.db.QueryRowContext(r.Context(),
		"SELECT id, role, password_hash FROM users WHERE email = $1", email).
		Scan(&userID, &role, &hashedPassword)
	if err != nil {
		s.recordFailedLogin(r.Context(), email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		s.recordFailedLogin(r.Context(), email)
		zap.L().Warn("invalid password", zap.String("email", email))
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(userID, email, role)
	if err != nil {
		zap.L().Error("jwt generation failed", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	zap.L().Info("login successful", zap.String("user_id", userID))
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, TokenType: "Bearer"})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and revoke the presented token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			// Revoke until the token would have expired anyway
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(r.Context(), key, "1", expiry).Err(); err != nil {
				zap.L().Warn("failed to revoke token", zap.Error(err))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// GetUserAccount retrieves the authenticated user's profile
// @Summary Get user account details
// @Description Get authenticated user's profile and wallet balance
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "User account details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	var balance sql.NullString
	err := s.db.QueryRowContext(r.Context(), `
		SELECT u.id, u.email, u.full_name, u.role, w.balance
		FROM users u
		LEFT JOIN wallets w ON w.user_id = u.id
		WHERE u.id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &balance)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		zap.L().Error("failed to fetch user account", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		return
	}

	resp := map[string]any{
		"id":       user.ID,
		"email":    user.Email,
		"fullName": user.FullName,
		"role":     user.Role,
	}
	if balance.Valid {
		resp["balance"] = balance.String
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *AuthService) checkLoginRateLimit(ctx context.Context, email string) error {
	if s.redis == nil {
		return nil
	}

	key := "login_attempts:" + email
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return nil
	}
	if count >= s.cfg.RateLimitMax {
		return fmt.Errorf("rate limit exceeded for %s", email)
	}
	return nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, email string) {
	if s.redis == nil {
		return
	}

	key := "login_attempts:" + email
	if err := s.redis.Incr(ctx, key).Err(); err != nil {
		return
	}
	s.redis.Expire(ctx, key, s.cfg.RateWindow)
}

func generateJWT(userID, email, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"exp":   time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// HashPassword derives an argon2id hash using the configured parameters.
// The result embeds the salt so no extra column is needed.
func HashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
