package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_Publish(t *testing.T) {
	t.Run("delivers to all subscribers in order", func(t *testing.T) {
		bus := NewBus()
		var got []string

		bus.Subscribe(TopicPurchaseCompleted, func(ctx context.Context, event any) error {
			e := event.(PurchaseCompletedEvent)
			got = append(got, "first:"+e.CourseID)
			return nil
		})
		bus.Subscribe(TopicPurchaseCompleted, func(ctx context.Context, event any) error {
			e := event.(PurchaseCompletedEvent)
			got = append(got, "second:"+e.CourseID)
			return nil
		})

		bus.Publish(context.Background(), TopicPurchaseCompleted, PurchaseCompletedEvent{
			StudentID: "student-1",
			CourseID:  "course-1",
			Amount:    "199000",
		})

		assert.Equal(t, []string{"first:course-1", "second:course-1"}, got)
	})

	t.Run("handler error does not reach publisher or later handlers", func(t *testing.T) {
		bus := NewBus()
		delivered := false

		bus.Subscribe(TopicPurchaseCompleted, func(ctx context.Context, event any) error {
			return errors.New("enqueue failed")
		})
		bus.Subscribe(TopicPurchaseCompleted, func(ctx context.Context, event any) error {
			delivered = true
			return nil
		})

		bus.Publish(context.Background(), TopicPurchaseCompleted, PurchaseCompletedEvent{})
		assert.True(t, delivered)
	})

	t.Run("handler panic is recovered", func(t *testing.T) {
		bus := NewBus()
		bus.Subscribe(TopicPurchaseCompleted, func(ctx context.Context, event any) error {
			panic("boom")
		})

		assert.NotPanics(t, func() {
			bus.Publish(context.Background(), TopicPurchaseCompleted, PurchaseCompletedEvent{})
		})
	})

	t.Run("publish with no subscribers is a no-op", func(t *testing.T) {
		bus := NewBus()
		assert.NotPanics(t, func() {
			bus.Publish(context.Background(), "unknown.topic", struct{}{})
		})
	})
}
