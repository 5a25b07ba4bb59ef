package services

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"
)

type AdminService struct {
	db *sql.DB
}

// RevenueOverview summarizes the purchase ledger
// @Description Total revenue and order count across all successful purchases
type RevenueOverview struct {
	TotalRevenue string `json:"totalRevenue" example:"199000"`
	TotalOrders  int64  `json:"totalOrders" example:"1"`
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

// GetRevenue returns the revenue overview
// @Summary Revenue overview
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RevenueOverview
// @Router /admin/revenue [get]
func (s *AdminService) GetRevenue(w http.ResponseWriter, r *http.Request) {
	var overview RevenueOverview
	err := s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM purchase_transactions
		WHERE status = 'SUCCESS'`).
		Scan(&overview.TotalRevenue, &overview.TotalOrders)
	if err != nil {
		zap.L().Error("failed to aggregate revenue", zap.Error(err))
		SendErrorResponse(w, "Failed to fetch revenue", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}
