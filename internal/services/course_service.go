package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/models"
)

const publishedCoursesCacheKey = "courses:published:first"

type CourseService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	cfg       *config.NotificationConfig
}

// CreateCourseRequest represents course creation payload
// @Description Course creation request
type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=2" example:"NestJS Basic"`
	Description *string `json:"description,omitempty"`
	Price       string  `json:"price" validate:"required" example:"199000"`
}

// UpdateCourseRequest represents course update payload
// @Description Course update request; omitted fields are left unchanged
type UpdateCourseRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
}

// CoursePage is a cursor page of courses
type CoursePage struct {
	Data       []models.Course `json:"data"`
	NextCursor *string         `json:"nextCursor"`
}

func NewCourseService(db *sql.DB, redisClient *redis.Client) *CourseService {
	return &CourseService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		cfg:       config.LoadNotificationConfig(),
	}
}

// ListPublished returns the public course catalog
// @Summary List published courses
// @Description Cursor-paginated list of purchasable courses
// @Tags courses
// @Produce json
// @Param cursor query string false "Cursor (last course id of previous page)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} CoursePage
// @Router /courses [get]
func (s *CourseService) ListPublished(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if cursor != "" && uuid.Validate(cursor) != nil {
		SendErrorResponse(w, "Invalid cursor", http.StatusBadRequest, nil)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	// Only the first page is cached; it is by far the hottest read.
	cacheable := cursor == "" && limit == 10
	if cacheable && s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), publishedCoursesCacheKey).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(cached))
			return
		}
	}

	// Separate statements per cursor presence: the id column is a UUID, and a
	// text-typed "$1 = ''" guard would poison the comparison's type inference.
	var rows *sql.Rows
	var err error
	if cursor == "" {
		rows, err = s.db.QueryContext(r.Context(), `
			SELECT id, title, description, price, published, owner_id, created_at, updated_at
			FROM courses
			WHERE published = TRUE
			ORDER BY id ASC
			LIMIT $1`, limit+1)
	} else {
		rows, err = s.db.QueryContext(r.Context(), `
			SELECT id, title, description, price, published, owner_id, created_at, updated_at
			FROM courses
			WHERE published = TRUE AND id > $1
			ORDER BY id ASC
			LIMIT $2`, cursor, limit+1)
	}
	if err != nil {
		zap.L().Error("failed to list courses", zap.Error(err))
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	courses, err := scanCourses(rows)
	if err != nil {
		zap.L().Error("failed to scan courses", zap.Error(err))
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}

	page := CoursePage{Data: courses}
	if len(courses) > limit {
		page.Data = courses[:limit]
		last := page.Data[limit-1].ID
		page.NextCursor = &last
	}
	if page.Data == nil {
		page.Data = []models.Course{}
	}

	if cacheable && s.redis != nil {
		if body, err := json.Marshal(page); err == nil {
			s.redis.Set(r.Context(), publishedCoursesCacheKey, body, s.cfg.CacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, page)
}

// CreateCourse creates a draft course owned by the caller
// @Summary Create course
// @Description Create an unpublished course; instructor only
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCourseRequest true "Course data"
// @Success 201 {object} models.Course
// @Failure 400 {object} ErrorResponse
// @Router /courses [post]
func (s *CourseService) CreateCourse(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateCourseRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		SendErrorResponse(w, "Invalid price", http.StatusBadRequest, nil)
		return
	}

	course := models.Course{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Price:       price,
		Published:   false,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO courses (id, title, description, price, published, owner_id)
		VALUES ($1, $2, $3, $4, FALSE, $5)`,
		course.ID, course.Title, course.Description, price.String(), ownerID)
	if err != nil {
		zap.L().Error("failed to create course", zap.String("owner_id", ownerID), zap.Error(err))
		SendErrorResponse(w, "Failed to create course", http.StatusInternalServerError, nil)
		return
	}

	s.invalidateCatalogCache(r.Context())
	writeJSON(w, http.StatusCreated, course)
}

// GetCourse returns a single course
// @Summary Get course
// @Tags courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} models.Course
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId} [get]
func (s *CourseService) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	course, err := s.loadCourse(r.Context(), courseID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Course not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		zap.L().Error("failed to load course", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch course", http.StatusInternalServerError, nil)
		return
	}

	if !course.Published {
		viewerID, _ := r.Context().Value("userID").(string)
		viewerRole, _ := r.Context().Value("userRole").(string)
		if viewerID != course.OwnerID && viewerRole != models.RoleAdmin {
			SendErrorResponse(w, "Course not found", http.StatusNotFound, nil)
			return
		}
	}

	writeJSON(w, http.StatusOK, course)
}

// ListMine returns the caller's own courses, drafts included
// @Summary List instructor's courses
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Course
// @Router /instructor/courses [get]
func (s *CourseService) ListMine(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, title, description, price, published, owner_id, created_at, updated_at
		FROM courses
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		zap.L().Error("failed to list instructor courses", zap.String("owner_id", ownerID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	courses, err := scanCourses(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch courses", http.StatusInternalServerError, nil)
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}

	writeJSON(w, http.StatusOK, courses)
}

// UpdateCourse updates an owned course
// @Summary Update course
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param request body UpdateCourseRequest true "Fields to update"
// @Success 200 {object} models.Course
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId} [put]
func (s *CourseService) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	course, ok := s.requireOwnership(w, r, courseID)
	if !ok {
		return
	}

	var req UpdateCourseRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = req.Description
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			SendErrorResponse(w, "Invalid price", http.StatusBadRequest, nil)
			return
		}
		course.Price = price
	}

	_, err := s.db.ExecContext(r.Context(), `
		UPDATE courses SET title = $1, description = $2, price = $3, updated_at = NOW()
		WHERE id = $4`,
		course.Title, course.Description, course.Price.String(), courseID)
	if err != nil {
		zap.L().Error("failed to update course", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to update course", http.StatusInternalServerError, nil)
		return
	}

	s.invalidateCatalogCache(r.Context())
	writeJSON(w, http.StatusOK, course)
}

// PublishCourse flips a course to published
// @Summary Publish course
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} models.Course
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId}/publish [post]
func (s *CourseService) PublishCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	course, ok := s.requireOwnership(w, r, courseID)
	if !ok {
		return
	}

	_, err := s.db.ExecContext(r.Context(),
		`UPDATE courses SET published = TRUE, updated_at = NOW() WHERE id = $1`, courseID)
	if err != nil {
		zap.L().Error("failed to publish course", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to publish course", http.StatusInternalServerError, nil)
		return
	}

	course.Published = true
	s.invalidateCatalogCache(r.Context())
	zap.L().Info("course published", zap.String("course_id", courseID))
	writeJSON(w, http.StatusOK, course)
}

// DeleteCourse removes an owned course
// @Summary Delete course
// @Tags courses
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 204 "Deleted"
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId} [delete]
func (s *CourseService) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if _, ok := s.requireOwnership(w, r, courseID); !ok {
		return
	}

	_, err := s.db.ExecContext(r.Context(), `DELETE FROM courses WHERE id = $1`, courseID)
	if err != nil {
		zap.L().Error("failed to delete course", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to delete course", http.StatusInternalServerError, nil)
		return
	}

	s.invalidateCatalogCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// requireOwnership loads the course and enforces that the caller owns it (or
// is an admin). Writes the error response itself on failure.
func (s *CourseService) requireOwnership(w http.ResponseWriter, r *http.Request, courseID string) (*models.Course, bool) {
	viewerID, _ := r.Context().Value("userID").(string)
	viewerRole, _ := r.Context().Value("userRole").(string)

	course, err := s.loadCourse(r.Context(), courseID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Course not found", http.StatusNotFound, nil)
		return nil, false
	}
	if err != nil {
		zap.L().Error("failed to load course", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch course", http.StatusInternalServerError, nil)
		return nil, false
	}

	if course.OwnerID != viewerID && viewerRole != models.RoleAdmin {
		SendErrorResponse(w, "You do not have permission to access this course", http.StatusForbidden, nil)
		return nil, false
	}

	return course, true
}

func (s *CourseService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	var course models.Course
	var priceStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, price, published, owner_id, created_at, updated_at
		FROM courses WHERE id = $1`, courseID).
		Scan(&course.ID, &course.Title, &course.Description, &priceStr,
			&course.Published, &course.OwnerID, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return nil, err
	}

	course.Price, err = decimal.NewFromString(priceStr)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *CourseService) invalidateCatalogCache(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, publishedCoursesCacheKey).Err(); err != nil {
		zap.L().Warn("failed to invalidate course cache", zap.Error(err))
	}
}

func scanCourses(rows *sql.Rows) ([]models.Course, error) {
	var courses []models.Course
	for rows.Next() {
		var course models.Course
		var priceStr string
		if err := rows.Scan(&course.ID, &course.Title, &course.Description, &priceStr,
			&course.Published, &course.OwnerID, &course.CreatedAt, &course.UpdatedAt); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, err
		}
		course.Price = price
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// decodeJSONBody reads a single JSON object into dst, writing the error
// response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
