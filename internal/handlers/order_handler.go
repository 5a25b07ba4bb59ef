package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/services"
)

type OrderHandler struct {
	service   *services.OrderService
	validator *services.ValidationHelper
}

func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// PurchaseRequest represents a course purchase
// @Description Purchase request structure
type PurchaseRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// Purchase buys a course for the authenticated student
// @Summary Purchase a course
// @Description Debit the student's wallet, create the enrollment and the transaction record. Repeat purchases return success without charging again.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PurchaseRequest true "Purchase request"
// @Success 200 {object} services.PurchaseResult
// @Failure 400 {object} services.ErrorResponse "Not published, wallet missing or insufficient funds"
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "Student or course not found"
// @Failure 500 {object} services.ErrorResponse
// @Router /orders/purchase [post]
func (h *OrderHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	studentID, ok := r.Context().Value("userID").(string)
	if !ok || studentID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req PurchaseRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Purchase(r.Context(), studentID, req.CourseID)
	if err != nil {
		services.SendErrorResponse(w, purchaseErrorMessage(err), purchaseStatusCode(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func purchaseStatusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrStudentNotFound), errors.Is(err, services.ErrCourseNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrWalletMissing),
		errors.Is(err, services.ErrCourseNotPublished),
		errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// purchaseErrorMessage keeps infrastructure error text away from callers:
// anything outside the domain taxonomy maps to a generic message.
func purchaseErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrStudentNotFound),
		errors.Is(err, services.ErrCourseNotFound),
		errors.Is(err, services.ErrWalletMissing),
		errors.Is(err, services.ErrCourseNotPublished),
		errors.Is(err, services.ErrInsufficientFunds):
		return err.Error()
	default:
		zap.L().Error("purchase failed", zap.Error(err))
		return "Purchase failed"
	}
}
