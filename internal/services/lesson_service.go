package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/events"
	"github.com/learnhub/backend/internal/models"
)

type LessonService struct {
	db        *sql.DB
	bus       *events.Bus
	validator *validator.Validate
}

// CreateLessonRequest represents lesson creation payload
// @Description Lesson creation request
type CreateLessonRequest struct {
	Title    string  `json:"title" validate:"required,min=2"`
	VideoURL *string `json:"videoUrl,omitempty" validate:"omitempty,url"`
	Position int     `json:"position" validate:"gte=0"`
}

// UpdateLessonRequest represents lesson update payload
// @Description Lesson update request; omitted fields are left unchanged
type UpdateLessonRequest struct {
	Title    *string `json:"title,omitempty"`
	VideoURL *string `json:"videoUrl,omitempty"`
}

// LessonPage is a cursor page of lessons
type LessonPage struct {
	Data       []models.Lesson `json:"data"`
	NextCursor *string         `json:"nextCursor"`
}

func NewLessonService(db *sql.DB, bus *events.Bus) *LessonService {
	return &LessonService{db: db, bus: bus, validator: validator.New()}
}

// publishVideoUploaded hands a new or replaced lesson video to the media
// pipeline.
func (s *LessonService) publishVideoUploaded(ctx context.Context, lesson models.Lesson) {
	if s.bus == nil || lesson.VideoURL == nil || *lesson.VideoURL == "" {
		return
	}
	s.bus.Publish(ctx, events.TopicLessonVideoUploaded, events.LessonVideoUploadedEvent{
		LessonID: lesson.ID,
		VideoURL: *lesson.VideoURL,
	})
}

// CreateLesson adds a lesson to an owned course
// @Summary Create lesson
// @Tags lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param request body CreateLessonRequest true "Lesson data"
// @Success 201 {object} models.Lesson
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId}/lessons [post]
func (s *LessonService) CreateLesson(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if !s.requireCourseOwner(w, r, courseID) {
		return
	}

	var req CreateLessonRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	lesson := models.Lesson{
		ID:       uuid.NewString(),
		CourseID: courseID,
		Title:    req.Title,
		VideoURL: req.VideoURL,
		Position: req.Position,
	}

	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO lessons (id, course_id, title, video_url, position)
		VALUES ($1, $2, $3, $4, $5)`,
		lesson.ID, lesson.CourseID, lesson.Title, lesson.VideoURL, lesson.Position)
	if err != nil {
		zap.L().Error("failed to create lesson", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to create lesson", http.StatusInternalServerError, nil)
		return
	}

	s.publishVideoUploaded(r.Context(), lesson)
	writeJSON(w, http.StatusCreated, lesson)
}

// ListByCourse lists a course's lessons. Students must own the course.
// @Summary List lessons
// @Description Cursor-paginated lessons of a course; students need an enrollment
// @Tags lessons
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param cursor query string false "Cursor (last lesson id of previous page)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} LessonPage
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{courseId}/lessons [get]
func (s *LessonService) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	viewerID, _ := r.Context().Value("userID").(string)
	viewerRole, _ := r.Context().Value("userRole").(string)

	var courseExists bool
	if err := s.db.QueryRowContext(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`, courseID).Scan(&courseExists); err != nil {
		SendErrorResponse(w, "Failed to fetch lessons", http.StatusInternalServerError, nil)
		return
	}
	if !courseExists {
		SendErrorResponse(w, "Course not found", http.StatusNotFound, nil)
		return
	}

	// Lesson content is gated on ownership for students; instructors and
	// admins see everything.
	if viewerRole == models.RoleStudent {
		var enrolled bool
		err := s.db.QueryRowContext(r.Context(),
			`SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`,
			viewerID, courseID).Scan(&enrolled)
		if err != nil {
			SendErrorResponse(w, "Failed to fetch lessons", http.StatusInternalServerError, nil)
			return
		}
		if !enrolled {
			SendErrorResponse(w, "Bạn chưa sở hữu khóa học này", http.StatusForbidden, nil)
			return
		}
	}

	cursor := r.URL.Query().Get("cursor")
	var cursorPos int
	var cursorID string
	if cursor != "" {
		var err error
		cursorPos, cursorID, err = parseLessonCursor(cursor)
		if err != nil {
			SendErrorResponse(w, "Invalid cursor", http.StatusBadRequest, nil)
			return
		}
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	// Keyset pagination over (position, id) to match the sort order; id alone
	// would skip rows whenever UUID order disagrees with position order.
	var rows *sql.Rows
	var err error
	if cursor == "" {
		rows, err = s.db.QueryContext(r.Context(), `
			SELECT id, course_id, title, video_url, position
			FROM lessons
			WHERE course_id = $1
			ORDER BY position ASC, id ASC
			LIMIT $2`, courseID, limit+1)
	} else {
		rows, err = s.db.QueryContext(r.Context(), `
			SELECT id, course_id, title, video_url, position
			FROM lessons
			WHERE course_id = $1 AND (position, id) > ($2, $3)
			ORDER BY position ASC, id ASC
			LIMIT $4`, courseID, cursorPos, cursorID, limit+1)
	}
	if err != nil {
		zap.L().Error("failed to list lessons", zap.String("course_id", courseID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch lessons", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	var lessons []models.Lesson
	for rows.Next() {
		var lesson models.Lesson
		if err := rows.Scan(&lesson.ID, &lesson.CourseID, &lesson.Title, &lesson.VideoURL, &lesson.Position); err != nil {
			SendErrorResponse(w, "Failed to fetch lessons", http.StatusInternalServerError, nil)
			return
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch lessons", http.StatusInternalServerError, nil)
		return
	}

	page := LessonPage{Data: lessons}
	if len(lessons) > limit {
		page.Data = lessons[:limit]
		last := lessonCursor(page.Data[limit-1])
		page.NextCursor = &last
	}
	if page.Data == nil {
		page.Data = []models.Lesson{}
	}

	writeJSON(w, http.StatusOK, page)
}

// UpdateLesson edits a lesson of an owned course
// @Summary Update lesson
// @Tags lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param lessonId path string true "Lesson ID"
// @Param request body UpdateLessonRequest true "Fields to update"
// @Success 200 {object} models.Lesson
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /lessons/{lessonId} [put]
func (s *LessonService) UpdateLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")

	var lesson models.Lesson
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, course_id, title, video_url, position
		FROM lessons WHERE id = $1`, lessonID).
		Scan(&lesson.ID, &lesson.CourseID, &lesson.Title, &lesson.VideoURL, &lesson.Position)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Lesson not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch lesson", http.StatusInternalServerError, nil)
		return
	}

	if !s.requireCourseOwner(w, r, lesson.CourseID) {
		return
	}

	var req UpdateLessonRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.VideoURL != nil {
		lesson.VideoURL = req.VideoURL
	}

	_, err = s.db.ExecContext(r.Context(),
		`UPDATE lessons SET title = $1, video_url = $2 WHERE id = $3`,
		lesson.Title, lesson.VideoURL, lessonID)
	if err != nil {
		zap.L().Error("failed to update lesson", zap.String("lesson_id", lessonID), zap.Error(err))
		SendErrorResponse(w, "Failed to update lesson", http.StatusInternalServerError, nil)
		return
	}

	if req.VideoURL != nil {
		s.publishVideoUploaded(r.Context(), lesson)
	}
	writeJSON(w, http.StatusOK, lesson)
}

// lessonCursor encodes the keyset position of a lesson as "position:id".
func lessonCursor(l models.Lesson) string {
	return strconv.Itoa(l.Position) + ":" + l.ID
}

func parseLessonCursor(cursor string) (int, string, error) {
	posStr, id, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor %q", cursor)
	}
	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor position: %w", err)
	}
	if err := uuid.Validate(id); err != nil {
		return 0, "", fmt.Errorf("malformed cursor id: %w", err)
	}
	return pos, id, nil
}

func (s *LessonService) requireCourseOwner(w http.ResponseWriter, r *http.Request, courseID string) bool {
	viewerID, _ := r.Context().Value("userID").(string)
	viewerRole, _ := r.Context().Value("userRole").(string)

	var ownerID string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT owner_id FROM courses WHERE id = $1`, courseID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Course not found", http.StatusNotFound, nil)
		return false
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch course", http.StatusInternalServerError, nil)
		return false
	}

	if ownerID != viewerID && viewerRole != models.RoleAdmin {
		SendErrorResponse(w, "You do not have permission to access this course", http.StatusForbidden, nil)
		return false
	}
	return true
}
