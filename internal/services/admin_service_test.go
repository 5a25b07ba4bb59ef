package services

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminServiceGetRevenue(t *testing.T) {
	revenueQuery := regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0), COUNT(*)")

	t.Run("sums successful purchase transactions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAdminService(db)

		mock.ExpectQuery(revenueQuery).
			WillReturnRows(sqlmock.NewRows([]string{"total", "count"}).AddRow("597000", 3))

		req := courseRequest(http.MethodGet, "/api/v1/admin/revenue", "",
			map[string]string{"userID": "admin-1", "userRole": "ADMIN"}, nil)
		w := httptest.NewRecorder()
		svc.GetRevenue(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "597000")
		assert.Contains(t, w.Body.String(), `"totalOrders":3`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no sales reads as zero revenue", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		svc := NewAdminService(db)

		mock.ExpectQuery(revenueQuery).
			WillReturnRows(sqlmock.NewRows([]string{"total", "count"}).AddRow("0", 0))

		req := courseRequest(http.MethodGet, "/api/v1/admin/revenue", "",
			map[string]string{"userID": "admin-1", "userRole": "ADMIN"}, nil)
		w := httptest.NewRecorder()
		svc.GetRevenue(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"totalOrders":0`)
	})
}
