package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/events"
	"github.com/spec-kit/official-relay/internal/service"
)

const handleTimeout = 10 * time.Second

// ErrQueueFull is returned when an event arrives while the queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// NotificationWorker moves notification delivery off the callback path.
type NotificationWorker struct {
	jobs   chan events.Event
	handle events.EventHandler
	logger *zap.Logger
}

// NewNotificationWorker creates a worker with a bounded queue.
func NewNotificationWorker(size int, handle events.EventHandler, logger *zap.Logger) *NotificationWorker {
	if size <= 0 {
		size = 1
	}
	return &NotificationWorker{
		jobs:   make(chan events.Event, size),
		handle: handle,
		logger: logger,
	}
}

// Enqueue never blocks; a full queue drops the event.
func (w *NotificationWorker) Enqueue(_ context.Context, event events.Event) error {
	select {
	case w.jobs <- event:
		return nil
	default:
		w.logger.Warn("dropping notification", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return ErrQueueFull
	}
}

// Run handles queued events until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.jobs:
			w.process(ctx, event)
		}
	}
}

func (w *NotificationWorker) process(ctx context.Context, event events.Event) {
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	if err := w.handle(hctx, event); err != nil {
		w.logger.Warn("notification failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// StartNotificationWorker subscribes the worker to staff_bound events and runs it.
func StartNotificationWorker(ctx context.Context, dispatcher events.Dispatcher, notificationService *service.NotificationService, size int, logger *zap.Logger) *NotificationWorker {
	if dispatcher == nil || notificationService == nil {
		return nil
	}
	w := NewNotificationWorker(size, notificationService.HandleStaffBound, logger)
	dispatcher.Subscribe(events.EventStaffBound, w.Enqueue)
	go w.Run(ctx)
	return w
}
