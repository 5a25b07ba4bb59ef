package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TopicPurchaseCompleted is published once purchase settlement has committed.
const TopicPurchaseCompleted = "order.purchase.completed"

// TopicLessonVideoUploaded is published when a lesson gains or changes a
// video, so the media pipeline can pick it up.
const TopicLessonVideoUploaded = "lesson.video.uploaded"

// LessonVideoUploadedEvent references the lesson whose video needs
// post-processing.
type LessonVideoUploadedEvent struct {
	LessonID string `json:"lessonId"`
	VideoURL string `json:"videoUrl"`
}

// PurchaseCompletedEvent carries the settled purchase. Amount is the exact
// value debited and written to the ledger row.
type PurchaseCompletedEvent struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
	Amount    string `json:"amount"`
}

type Handler func(ctx context.Context, event any) error

// Bus is a synchronous in-process pub/sub. Publish delivers to every
// subscriber before returning; subscriber failures and panics are logged and
// never propagate back to the publisher, so an emitting caller cannot be
// failed by its listeners.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

func (b *Bus) Publish(ctx context.Context, topic string, event any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, topic, h, event)
	}
}

func (b *Bus) deliver(ctx context.Context, topic string, h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("event handler panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()

	if err := h(ctx, event); err != nil {
		zap.L().Error("event handler failed",
			zap.String("topic", topic),
			zap.Error(err))
	}
}
