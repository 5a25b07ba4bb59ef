package services

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/models"
)

type WalletService struct {
	db        *sql.DB
	validator *validator.Validate
}

// TopUpRequest represents an admin wallet credit
// @Description Wallet top-up request
type TopUpRequest struct {
	Amount string `json:"amount" validate:"required" example:"1000000"`
}

func NewWalletService(db *sql.DB) *WalletService {
	return &WalletService{db: db, validator: validator.New()}
}

// GetWallet returns the caller's wallet
// @Summary Wallet balance enquiry
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Wallet
// @Failure 404 {object} ErrorResponse
// @Router /wallet [get]
func (s *WalletService) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var wallet models.Wallet
	var balanceStr string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1`, userID).
		Scan(&wallet.ID, &wallet.UserID, &balanceStr, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		zap.L().Error("failed to fetch wallet", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		return
	}

	wallet.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		zap.L().Error("corrupt wallet balance", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, wallet)
}

// TopUp credits a user's wallet, creating it if needed. This is the
// out-of-band provisioning path: the purchase flow itself never creates
// wallets.
// @Summary Credit a wallet
// @Description Admin-only wallet provisioning and top-up
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Param request body TopUpRequest true "Amount to credit"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/wallets/{userId}/topup [post]
func (s *WalletService) TopUp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req TopUpRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	var exists bool
	if err := s.db.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		SendErrorResponse(w, "Failed to credit wallet", http.StatusInternalServerError, nil)
		return
	}
	if !exists {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO wallets (id, user_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`,
		uuid.NewString(), userID, amount.String())
	if err != nil {
		zap.L().Error("failed to credit wallet", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to credit wallet", http.StatusInternalServerError, nil)
		return
	}

	zap.L().Info("wallet credited",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Wallet credited"})
}

// ListMyCourses returns the caller's enrollments joined to their courses
// @Summary List owned courses
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.EnrolledCourse
// @Router /my-courses [get]
func (s *WalletService) ListMyCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT c.id, c.title, c.description, c.price, c.published, c.owner_id, c.created_at, c.updated_at, e.created_at
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1
		ORDER BY e.created_at DESC`, userID)
	if err != nil {
		zap.L().Error("failed to list enrollments", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	courses := []models.EnrolledCourse{}
	for rows.Next() {
		var ec models.EnrolledCourse
		var priceStr string
		if err := rows.Scan(&ec.ID, &ec.Title, &ec.Description, &priceStr,
			&ec.Published, &ec.OwnerID, &ec.CreatedAt, &ec.UpdatedAt, &ec.EnrolledAt); err != nil {
			SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
			return
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
			return
		}
		ec.Price = price
		courses = append(courses, ec)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, courses)
}
